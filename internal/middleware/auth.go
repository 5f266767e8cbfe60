package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"nearish-backend/internal/models"
	"nearish-backend/internal/services"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	accountKey  contextKey = "account"
)

// AuthMiddleware validates the opaque bearer token against stored auth
// sessions and resolves (lazily creating) the caller's app identity.
func AuthMiddleware(authService *services.AuthService, identityService *services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			account, err := authService.Authenticate(ctx, parts[1])
			if err != nil {
				if errors.Is(err, models.ErrSessionExpired) {
					respondError(w, "Session expired", http.StatusUnauthorized)
				} else {
					respondError(w, "Invalid session", http.StatusUnauthorized)
				}
				return
			}

			identity, err := identityService.GetOrCreate(ctx, account.ID)
			if err != nil {
				respondError(w, "Failed to resolve identity", http.StatusInternalServerError)
				return
			}

			ctx = context.WithValue(ctx, accountKey, account)
			ctx = context.WithValue(ctx, identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the caller's identity from context
func GetIdentity(ctx context.Context) *models.Identity {
	identity, _ := ctx.Value(identityKey).(*models.Identity)
	return identity
}

// GetAccount extracts the caller's auth account from context
func GetAccount(ctx context.Context) *models.Account {
	account, _ := ctx.Value(accountKey).(*models.Account)
	return account
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
