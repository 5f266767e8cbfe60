package repository

import (
	"context"
	"errors"
	"fmt"

	"nearish-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthRepository reads the session and account tables owned by the external
// auth service. This backend never writes them.
type AuthRepository struct {
	db *pgxpool.Pool
}

// NewAuthRepository creates a new auth repository
func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// GetSessionByToken retrieves an auth session by its bearer token
func (r *AuthRepository) GetSessionByToken(ctx context.Context, token string) (*models.AuthSession, error) {
	query := `SELECT id, "userId", token, "expiresAt" FROM "session" WHERE token = $1`
	var s models.AuthSession
	err := r.db.QueryRow(ctx, query, token).Scan(&s.ID, &s.AccountID, &s.Token, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetAccountByID retrieves an auth account by ID
func (r *AuthRepository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT id, name, email, image, COALESCE("isAnonymous", false), "createdAt" FROM "user" WHERE id = $1`
	var a models.Account
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Email, &a.Image, &a.IsAnonymous, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}
