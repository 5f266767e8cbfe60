package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PartnerHandler handles pairing and partner-interaction HTTP requests
type PartnerHandler struct {
	pairingService *services.PairingService
	pushService    *services.PushService
	bus            *services.EventBus
}

// NewPartnerHandler creates a new partner handler
func NewPartnerHandler(pairingService *services.PairingService, pushService *services.PushService, bus *services.EventBus) *PartnerHandler {
	return &PartnerHandler{
		pairingService: pairingService,
		pushService:    pushService,
		bus:            bus,
	}
}

// IssueCode handles POST /api/v1/partner/code
func (h *PartnerHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	code, err := h.pairingService.IssueCode(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to issue connection code")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"code": code})
}

// ConnectRequest is the body for POST /api/v1/partner/connect
type ConnectRequest struct {
	Code string `json:"code"`
}

// Connect handles POST /api/v1/partner/connect
func (h *PartnerHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	account := middleware.GetAccount(ctx)

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		respondError(w, "code is required", http.StatusBadRequest)
		return
	}

	displayName := ""
	if account.Name != nil {
		displayName = *account.Name
	}

	partnerID, err := h.pairingService.Connect(ctx, identity, req.Code, displayName)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to connect partner")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":    "Successfully connected!",
		"partner_id": partnerID,
	})
}

// Disconnect handles POST /api/v1/partner/disconnect
func (h *PartnerHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := h.pairingService.Disconnect(ctx, identity); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to disconnect partner")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Nudge handles POST /api/v1/partner/nudge
func (h *PartnerHandler) Nudge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	account := middleware.GetAccount(ctx)

	partner, err := h.pairingService.Partner(ctx, identity)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	senderName := "Your partner"
	if account.Name != nil && *account.Name != "" {
		senderName = *account.Name
	}
	message := fmt.Sprintf("%s is thinking of you! ❤️", senderName)

	h.bus.Publish(partner.ID, "nudge", map[string]interface{}{
		"message":     message,
		"sender_name": senderName,
	})

	// Fall back to a push notification when no device has the app open.
	if !h.bus.HasConnections(partner.ID) && partner.PushToken != nil && h.pushService.Enabled() {
		if err := h.pushService.Send(*partner.PushToken, "Nudge", message, map[string]string{"type": "nudge"}); err != nil {
			log.Warn().Err(err).Str("partner_id", partner.ID).Msg("Nudge push delivery failed")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Nudge sent",
	})
}
