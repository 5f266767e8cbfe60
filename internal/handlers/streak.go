package handlers

import (
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// StreakHandler handles streak HTTP requests
type StreakHandler struct {
	streakService *services.StreakService
}

// NewStreakHandler creates a new streak handler
func NewStreakHandler(streakService *services.StreakService) *StreakHandler {
	return &StreakHandler{streakService: streakService}
}

// CheckIn handles POST /api/v1/streak/check-in
func (h *StreakHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	result, err := h.streakService.CheckIn(ctx, identity.ID)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to check in streak")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
