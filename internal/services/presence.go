package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"nearish-backend/internal/models"
)

// locationStaleAfter marks a partner location older than this as stale.
const locationStaleAfter = time.Hour

// PresenceService handles partner-visible status and location state
type PresenceService struct {
	store IdentityStore
	bus   *EventBus
}

// NewPresenceService creates a new presence service
func NewPresenceService(store IdentityStore, bus *EventBus) *PresenceService {
	return &PresenceService{store: store, bus: bus}
}

// UpdateStatus stores the identity's status and notifies the partner
func (s *PresenceService) UpdateStatus(ctx context.Context, identity *models.Identity, emoji, text *string) error {
	now := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, identity.ID, emoji, text, now); err != nil {
		return err
	}

	if identity.PartnerID != nil {
		s.bus.Publish(*identity.PartnerID, "partner_status_update", map[string]interface{}{
			"emoji":     emoji,
			"text":      text,
			"updatedAt": now.Format(time.RFC3339),
		})
	}
	return nil
}

// UpdateLocation stores the identity's last reported location
func (s *PresenceService) UpdateLocation(ctx context.Context, identity *models.Identity, lat, lon float64) error {
	return s.store.UpdateLocation(ctx, identity.ID, lat, lon, time.Now().UTC())
}

// haversineMiles returns the great-circle distance between two points in miles
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMiles = 3958.8

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

func distanceLabel(miles float64) string {
	switch {
	case miles < 0.5:
		return "With You ❤️"
	case miles < 5:
		return "Nearby"
	default:
		return fmt.Sprintf("%.2f miles away", miles)
	}
}

// PartnerStatusView is the partner's status with a distance summary
type PartnerStatusView struct {
	Emoji     *string              `json:"emoji"`
	Text      *string              `json:"text"`
	UpdatedAt *time.Time           `json:"updatedAt"`
	Location  *PartnerLocationView `json:"location,omitempty"`
}

// PartnerLocationView is the partner's last known location relative to the caller
type PartnerLocationView struct {
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	DistanceMiles *float64   `json:"distanceMiles"`
	Status        string     `json:"status"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	IsStale       bool       `json:"isStale"`
}

func (s *PresenceService) partner(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if identity.PartnerID == nil {
		return nil, models.ErrNotPaired
	}
	return s.store.GetByID(ctx, *identity.PartnerID)
}

func locationView(me, partner *models.Identity, includeCoords bool) *PartnerLocationView {
	if partner.LastLatitude == nil || partner.LastLongitude == nil {
		return nil
	}

	view := &PartnerLocationView{
		Status:    "Unknown",
		UpdatedAt: partner.LastLocationAt,
	}
	if includeCoords {
		view.Latitude = partner.LastLatitude
		view.Longitude = partner.LastLongitude
	}

	if me.LastLatitude != nil && me.LastLongitude != nil {
		miles := haversineMiles(*me.LastLatitude, *me.LastLongitude, *partner.LastLatitude, *partner.LastLongitude)
		rounded := math.Round(miles*100) / 100
		view.DistanceMiles = &rounded
		view.Status = distanceLabel(miles)
	}

	if partner.LastLocationAt != nil && time.Since(*partner.LastLocationAt) > locationStaleAfter {
		view.IsStale = true
		view.Status = "Last seen " + view.Status
	}
	return view
}

// PartnerStatus returns the partner's status plus a distance summary when
// both locations are known
func (s *PresenceService) PartnerStatus(ctx context.Context, identity *models.Identity) (*PartnerStatusView, error) {
	partner, err := s.partner(ctx, identity)
	if err != nil {
		return nil, err
	}

	return &PartnerStatusView{
		Emoji:     partner.StatusEmoji,
		Text:      partner.StatusText,
		UpdatedAt: partner.StatusUpdatedAt,
		Location:  locationView(identity, partner, false),
	}, nil
}

// PartnerLocation returns the partner's last known location with distance
// and staleness info
func (s *PresenceService) PartnerLocation(ctx context.Context, identity *models.Identity) (*PartnerLocationView, error) {
	partner, err := s.partner(ctx, identity)
	if err != nil {
		return nil, err
	}
	return locationView(identity, partner, true), nil
}
