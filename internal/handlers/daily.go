package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// DailyHandler handles daily-question HTTP requests
type DailyHandler struct {
	dailyService *services.DailyService
}

// NewDailyHandler creates a new daily question handler
func NewDailyHandler(dailyService *services.DailyService) *DailyHandler {
	return &DailyHandler{dailyService: dailyService}
}

// Today handles GET /api/v1/daily
func (h *DailyHandler) Today(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	view, err := h.dailyService.View(ctx, identity, time.Now())
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to load daily question")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// DailyAnswerRequest is the body for POST /api/v1/daily/answer
type DailyAnswerRequest struct {
	Text string `json:"text"`
}

// Answer handles POST /api/v1/daily/answer
func (h *DailyHandler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req DailyAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	view, err := h.dailyService.Answer(ctx, identity, time.Now(), req.Text)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to answer daily question")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
