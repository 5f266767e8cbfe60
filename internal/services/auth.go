package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearish-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// streamTokenTTL bounds how long an issued stream token can be used to open
// an event stream. Streams opened before expiry stay up.
const streamTokenTTL = 5 * time.Minute

// AuthStore reads the session and account tables written by the external
// auth service
type AuthStore interface {
	GetSessionByToken(ctx context.Context, token string) (*models.AuthSession, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// AuthService validates opaque bearer tokens against stored auth sessions and
// signs short-lived stream tokens for query-string-authenticated transports
// (EventSource and browser WebSocket clients cannot set an Authorization
// header).
type AuthService struct {
	store        AuthStore
	streamSecret string
}

// NewAuthService creates a new auth service
func NewAuthService(store AuthStore, streamSecret string) *AuthService {
	return &AuthService{store: store, streamSecret: streamSecret}
}

// Authenticate resolves an opaque bearer token to its account
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	session, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	if session.ExpiresAt.Before(time.Now()) {
		return nil, models.ErrSessionExpired
	}

	account, err := s.store.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

// IssueStreamToken signs a short-lived token carrying an identity id, for
// opening an event stream
func (s *AuthService) IssueStreamToken(identityID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"identity_id": identityID,
		"iat":         now.Unix(),
		"exp":         now.Add(streamTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.streamSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign stream token: %w", err)
	}
	return signed, nil
}

// ValidateStreamToken verifies a stream token and returns the identity id
func (s *AuthService) ValidateStreamToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.streamSecret), nil
	})
	if err != nil || !token.Valid {
		return "", models.ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", models.ErrUnauthenticated
	}
	identityID, ok := claims["identity_id"].(string)
	if !ok || identityID == "" {
		return "", models.ErrUnauthenticated
	}
	return identityID, nil
}
