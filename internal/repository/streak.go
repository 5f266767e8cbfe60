package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearish-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StreakRepository handles database operations for check-in streaks
type StreakRepository struct {
	db *pgxpool.Pool
}

// NewStreakRepository creates a new streak repository
func NewStreakRepository(db *pgxpool.Pool) *StreakRepository {
	return &StreakRepository{db: db}
}

// GetByIdentityID retrieves the streak for an identity
func (r *StreakRepository) GetByIdentityID(ctx context.Context, identityID string) (*models.Streak, error) {
	query := `
		SELECT id, identity_id, current_streak, last_login_at, updated_at
		FROM streaks WHERE identity_id = $1
	`
	var s models.Streak
	err := r.db.QueryRow(ctx, query, identityID).Scan(
		&s.ID, &s.IdentityID, &s.CurrentStreak, &s.LastLoginAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return &s, nil
}

// Create inserts a new streak row
func (r *StreakRepository) Create(ctx context.Context, s *models.Streak) error {
	query := `
		INSERT INTO streaks (id, identity_id, current_streak, last_login_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.IdentityID, s.CurrentStreak, s.LastLoginAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create streak: %w", err)
	}
	return nil
}

// Update stores a streak's new count and check-in time
func (r *StreakRepository) Update(ctx context.Context, identityID string, count int, lastLogin time.Time) error {
	query := `
		UPDATE streaks SET current_streak = $1, last_login_at = $2, updated_at = now()
		WHERE identity_id = $3
	`
	result, err := r.db.Exec(ctx, query, count, lastLogin, identityID)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
