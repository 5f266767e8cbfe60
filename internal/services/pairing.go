package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"nearish-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	codeLength = 6
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// PairingStore is the identity storage the pairing service needs
type PairingStore interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByConnectionCode(ctx context.Context, code string) (*models.Identity, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	SetConnectionCode(ctx context.Context, id, code string) error
	ClaimPartners(ctx context.Context, meID, partnerID string) error
	ClearPartners(ctx context.Context, aID, bID string) error
}

// PairingService drives the connection-code state machine linking two
// identities symmetrically
type PairingService struct {
	store PairingStore
	bus   *EventBus
}

// NewPairingService creates a new pairing service
func NewPairingService(store PairingStore, bus *EventBus) *PairingService {
	return &PairingService{store: store, bus: bus}
}

// generateCode generates a random 6-character code
func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code), nil
}

// IssueCode returns the identity's connection code, generating a globally
// unique one if none is held yet. Idempotent while the code is unshared;
// fails with ErrAlreadyPaired once the identity has a partner.
func (s *PairingService) IssueCode(ctx context.Context, identity *models.Identity) (string, error) {
	if identity.PartnerID != nil {
		return "", models.ErrAlreadyPaired
	}
	if identity.ConnectionCode != nil {
		return *identity.ConnectionCode, nil
	}

	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if exists {
			continue
		}
		if err := s.store.SetConnectionCode(ctx, identity.ID, code); err != nil {
			// Another issuer landed on this code between the existence check
			// and the write; draw again.
			if errors.Is(err, models.ErrCodeTaken) {
				continue
			}
			return "", err
		}
		log.Info().Str("identity_id", identity.ID).Msg("Connection code issued")
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

// Connect consumes a connection code and links the caller with its owner.
// The two-row claim is atomic, so of two callers racing on the same code
// exactly one wins; the loser observes ErrCodeNotFound or
// ErrTargetAlreadyPaired. On success the new partner is notified through the
// bus.
func (s *PairingService) Connect(ctx context.Context, identity *models.Identity, code, displayName string) (string, error) {
	if identity.PartnerID != nil {
		return "", models.ErrAlreadyPaired
	}

	owner, err := s.store.GetByConnectionCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrCodeNotFound
		}
		return "", err
	}
	if owner.ID == identity.ID {
		return "", models.ErrSelfConnect
	}
	if owner.PartnerID != nil {
		return "", models.ErrTargetAlreadyPaired
	}

	if err := s.store.ClaimPartners(ctx, identity.ID, owner.ID); err != nil {
		return "", err
	}

	log.Info().
		Str("identity_id", identity.ID).
		Str("partner_id", owner.ID).
		Msg("Partners connected")

	if displayName == "" {
		displayName = "Your partner"
	}
	s.bus.Publish(owner.ID, "partner_connected", map[string]interface{}{
		"message":      fmt.Sprintf("%s has connected with you!", displayName),
		"partner_name": displayName,
	})

	return owner.ID, nil
}

// Disconnect severs the symmetric link and notifies the former partner.
func (s *PairingService) Disconnect(ctx context.Context, identity *models.Identity) error {
	if identity.PartnerID == nil {
		return models.ErrNotPaired
	}
	partnerID := *identity.PartnerID

	if err := s.store.ClearPartners(ctx, identity.ID, partnerID); err != nil {
		return err
	}

	log.Info().
		Str("identity_id", identity.ID).
		Str("partner_id", partnerID).
		Msg("Partners disconnected")

	s.bus.Publish(partnerID, "partner_disconnected", map[string]interface{}{
		"message": "Your partner has disconnected.",
	})
	return nil
}

// Partner resolves the identity's current partner record.
func (s *PairingService) Partner(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if identity.PartnerID == nil {
		return nil, models.ErrNotPaired
	}
	partner, err := s.store.GetByID(ctx, *identity.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	return partner, nil
}
