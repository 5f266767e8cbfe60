package handlers

import (
	"encoding/json"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles profile-related HTTP requests
type UserHandler struct {
	identityService *services.IdentityService
}

// NewUserHandler creates a new user handler
func NewUserHandler(identityService *services.IdentityService) *UserHandler {
	return &UserHandler{identityService: identityService}
}

// Me handles GET /api/v1/user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	account := middleware.GetAccount(ctx)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":              identity.ID,
		"partner_id":      identity.PartnerID,
		"connection_code": identity.ConnectionCode,
		"account_id":      account.ID,
		"name":            account.Name,
		"email":           account.Email,
		"is_anonymous":    account.IsAnonymous,
		"is_pro":          identity.IsPro,
		"status": map[string]interface{}{
			"emoji":     identity.StatusEmoji,
			"text":      identity.StatusText,
			"updatedAt": identity.StatusUpdatedAt,
		},
	})
}

// UpdatePushTokenRequest is the body for POST /api/v1/user/push-token
type UpdatePushTokenRequest struct {
	PushToken *string `json:"push_token"`
}

// UpdatePushToken handles POST /api/v1/user/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req UpdatePushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.identityService.SetPushToken(ctx, identity.ID, req.PushToken); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to update push token")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
