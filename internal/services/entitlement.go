package services

import (
	"context"

	"nearish-backend/internal/models"
	"nearish-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// EntitlementStore is the identity storage the propagator needs
type EntitlementStore interface {
	ApplyEntitlements(ctx context.Context, identityID string, rule func(me, partner *models.Identity) []repository.EntitlementUpdate) (*models.Identity, error)
}

// EntitlementService mirrors paid status across a pair. A partner donates
// entitlement only when their own pro is self-sourced, so propagation never
// chains past one hop.
type EntitlementService struct {
	store EntitlementStore
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(store EntitlementStore) *EntitlementService {
	return &EntitlementService{store: store}
}

// entitlementUpdates computes the new pro flags after one subscription-status
// report. It runs against the locked pair rows, never stale reads.
func entitlementUpdates(me, partner *models.Identity, ownSub bool) []repository.EntitlementUpdate {
	sharableFromPartner := partner != nil && partner.IsPro && !partner.IsProViaPartner

	updates := []repository.EntitlementUpdate{{
		IdentityID:      me.ID,
		IsPro:           ownSub || sharableFromPartner,
		IsProViaPartner: !ownSub && sharableFromPartner,
	}}

	if partner != nil {
		switch {
		case ownSub && !partner.IsPro:
			updates = append(updates, repository.EntitlementUpdate{
				IdentityID:      partner.ID,
				IsPro:           true,
				IsProViaPartner: true,
			})
		case !ownSub && partner.IsProViaPartner:
			// The partner relied on this identity's subscription.
			updates = append(updates, repository.EntitlementUpdate{
				IdentityID:      partner.ID,
				IsPro:           false,
				IsProViaPartner: false,
			})
		}
	}
	return updates
}

// Report evaluates a subscription-status report for an identity and applies
// the resulting pro flags to the identity and, when linked, its partner. The
// store runs the rule with both pair rows locked in one transaction, so
// concurrent reports from the two sides serialize. Repeated identical reports
// are idempotent.
func (s *EntitlementService) Report(ctx context.Context, identity *models.Identity, ownSub bool) error {
	updated, err := s.store.ApplyEntitlements(ctx, identity.ID, func(me, partner *models.Identity) []repository.EntitlementUpdate {
		return entitlementUpdates(me, partner, ownSub)
	})
	if err != nil {
		return err
	}

	identity.IsPro = updated.IsPro
	identity.IsProViaPartner = updated.IsProViaPartner

	log.Info().
		Str("identity_id", identity.ID).
		Bool("own_sub", ownSub).
		Bool("is_pro", identity.IsPro).
		Bool("via_partner", identity.IsProViaPartner).
		Msg("Subscription status reported")
	return nil
}
