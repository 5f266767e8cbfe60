package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/models"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PresenceHandler handles status and location HTTP requests
type PresenceHandler struct {
	presenceService *services.PresenceService
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presenceService *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// UpdateStatusRequest is the body for POST /api/v1/status
type UpdateStatusRequest struct {
	Emoji *string `json:"emoji"`
	Text  *string `json:"text"`
}

// UpdateStatus handles POST /api/v1/status
func (h *PresenceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.presenceService.UpdateStatus(ctx, identity, req.Emoji, req.Text); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to update status")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PartnerStatus handles GET /api/v1/status/partner
func (h *PresenceHandler) PartnerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	view, err := h.presenceService.PartnerStatus(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotPaired) {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"message": "No partner connected",
			})
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": view})
}

// UpdateLocationRequest is the body for POST /api/v1/location
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// UpdateLocation handles POST /api/v1/location
func (h *PresenceHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if err := h.presenceService.UpdateLocation(ctx, identity, *req.Latitude, *req.Longitude); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to update location")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PartnerLocation handles GET /api/v1/location/partner
func (h *PresenceHandler) PartnerLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	view, err := h.presenceService.PartnerLocation(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotPaired) {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"message": "No partner connected",
			})
			return
		}
		respondDomainError(w, err)
		return
	}
	if view == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    nil,
			"message": "Partner location unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": view})
}
