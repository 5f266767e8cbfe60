package services

import (
	"context"
	"errors"
	"time"

	"nearish-backend/internal/models"
)

// IdentityStore is the identity storage the identity service needs
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.Identity, error)
	Create(ctx context.Context, accountID string) (*models.Identity, error)
	UpdatePushToken(ctx context.Context, id string, pushToken *string) error
	UpdateStatus(ctx context.Context, id string, emoji, text *string, at time.Time) error
	UpdateLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error
}

// IdentityService resolves accounts to app identities, creating them lazily
// on first authenticated access
type IdentityService struct {
	store IdentityStore
}

// NewIdentityService creates a new identity service
func NewIdentityService(store IdentityStore) *IdentityService {
	return &IdentityService{store: store}
}

// GetOrCreate returns the identity for an account, creating it on first access
func (s *IdentityService) GetOrCreate(ctx context.Context, accountID string) (*models.Identity, error) {
	identity, err := s.store.GetByAccountID(ctx, accountID)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.store.Create(ctx, accountID)
}

// Get retrieves an identity by ID
func (s *IdentityService) Get(ctx context.Context, id string) (*models.Identity, error) {
	return s.store.GetByID(ctx, id)
}

// SetPushToken stores or clears the device push token for an identity
func (s *IdentityService) SetPushToken(ctx context.Context, identityID string, pushToken *string) error {
	return s.store.UpdatePushToken(ctx, identityID, pushToken)
}
