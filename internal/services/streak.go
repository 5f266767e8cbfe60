package services

import (
	"context"
	"errors"
	"time"

	"nearish-backend/internal/models"

	"github.com/google/uuid"
)

// StreakStore is the storage the streak service needs
type StreakStore interface {
	GetByIdentityID(ctx context.Context, identityID string) (*models.Streak, error)
	Create(ctx context.Context, s *models.Streak) error
	Update(ctx context.Context, identityID string, count int, lastLogin time.Time) error
}

// StreakService tracks consecutive daily check-ins
type StreakService struct {
	store StreakStore
}

// NewStreakService creates a new streak service
func NewStreakService(store StreakStore) *StreakService {
	return &StreakService{store: store}
}

// CheckInResult is the outcome of a daily check-in
type CheckInResult struct {
	CurrentStreak int    `json:"currentStreak"`
	Message       string `json:"message"`
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// CheckIn records a daily check-in: same day is a no-op, a consecutive day
// increments the streak, anything else resets it to 1.
func (s *StreakService) CheckIn(ctx context.Context, identityID string) (*CheckInResult, error) {
	now := time.Now().UTC()

	streak, err := s.store.GetByIdentityID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		streak = &models.Streak{
			ID:            uuid.New().String(),
			IdentityID:    identityID,
			CurrentStreak: 1,
			LastLoginAt:   now,
			UpdatedAt:     now,
		}
		if err := s.store.Create(ctx, streak); err != nil {
			return nil, err
		}
		return &CheckInResult{CurrentStreak: 1, Message: "Streak started!"}, nil
	}

	if sameUTCDay(streak.LastLoginAt, now) {
		return &CheckInResult{CurrentStreak: streak.CurrentStreak, Message: "Already checked in today"}, nil
	}

	if sameUTCDay(streak.LastLoginAt, now.AddDate(0, 0, -1)) {
		count := streak.CurrentStreak + 1
		if err := s.store.Update(ctx, identityID, count, now); err != nil {
			return nil, err
		}
		return &CheckInResult{CurrentStreak: count, Message: "Streak increased!"}, nil
	}

	if err := s.store.Update(ctx, identityID, 1, now); err != nil {
		return nil, err
	}
	return &CheckInResult{CurrentStreak: 1, Message: "Streak reset."}, nil
}
