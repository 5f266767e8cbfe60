package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/models"
	"nearish-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MemoryHandler handles memory HTTP requests
type MemoryHandler struct {
	memoryService  *services.MemoryService
	pairingService *services.PairingService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(memoryService *services.MemoryService, pairingService *services.PairingService) *MemoryHandler {
	return &MemoryHandler{
		memoryService:  memoryService,
		pairingService: pairingService,
	}
}

// List handles GET /api/v1/memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	partner, err := h.pairingService.Partner(ctx, identity)
	if err != nil && !errors.Is(err, models.ErrNotPaired) {
		respondDomainError(w, err)
		return
	}

	views, err := h.memoryService.List(ctx, identity, partner)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to list memories")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": views})
}

// Create handles POST /api/v1/memories
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var in services.MemoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := h.memoryService.Create(ctx, identity, in)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to create memory")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": view})
}

// Update handles PUT /api/v1/memories/{memory_id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	memoryID := chi.URLParam(r, "memory_id")

	var in services.MemoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := h.memoryService.Update(ctx, identity, memoryID, in)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Str("memory_id", memoryID).Msg("Failed to update memory")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": view})
}

// Delete handles DELETE /api/v1/memories/{memory_id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	memoryID := chi.URLParam(r, "memory_id")

	if err := h.memoryService.Delete(ctx, identity, memoryID); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Str("memory_id", memoryID).Msg("Failed to delete memory")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Memory deleted"})
}

// UploadURLRequest is the body for POST /api/v1/memories/upload-url
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// UploadURL handles POST /api/v1/memories/upload-url
func (h *MemoryHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" {
		respondError(w, "filename is required", http.StatusBadRequest)
		return
	}
	if req.ContentType == "" {
		req.ContentType = "image/jpeg"
	}

	response, err := h.memoryService.ImageUploadURL(ctx, identity, req.Filename, req.ContentType)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to generate upload URL")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, response)
}
