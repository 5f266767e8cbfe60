package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// GameHandler handles shared game session HTTP requests
type GameHandler struct {
	gameService *services.GameService
}

// NewGameHandler creates a new game handler
func NewGameHandler(gameService *services.GameService) *GameHandler {
	return &GameHandler{gameService: gameService}
}

func gameIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "game_id"))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListGames handles GET /api/v1/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.gameService.ListGames(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list games")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"games": games})
}

// StartOrResume handles POST /api/v1/games/{game_id}/session
func (h *GameHandler) StartOrResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	gameID, ok := gameIDParam(r)
	if !ok {
		respondError(w, "invalid game id", http.StatusBadRequest)
		return
	}

	session, err := h.gameService.StartOrResume(ctx, identity, gameID)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Int("game_id", gameID).Msg("Failed to start session")
		respondDomainError(w, err)
		return
	}

	view, err := h.gameService.View(ctx, identity, session.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Restart handles POST /api/v1/games/{game_id}/session/restart
func (h *GameHandler) Restart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	gameID, ok := gameIDParam(r)
	if !ok {
		respondError(w, "invalid game id", http.StatusBadRequest)
		return
	}

	if err := h.gameService.Restart(ctx, identity, gameID); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Int("game_id", gameID).Msg("Failed to restart session")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SessionView handles GET /api/v1/sessions/{session_id}
func (h *GameHandler) SessionView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	sessionID := chi.URLParam(r, "session_id")

	view, err := h.gameService.View(ctx, identity, sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// AnswerRequest is the body for POST /api/v1/sessions/{session_id}/answers
type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// RecordAnswer handles POST /api/v1/sessions/{session_id}/answers
func (h *GameHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	sessionID := chi.URLParam(r, "session_id")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QuestionID == "" || req.Text == "" {
		respondError(w, "question_id and text are required", http.StatusBadRequest)
		return
	}

	revealed, err := h.gameService.RecordAnswer(ctx, identity, sessionID, req.QuestionID, req.Text)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Str("session_id", sessionID).Msg("Failed to record answer")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{
		"success":  true,
		"revealed": revealed,
	})
}
