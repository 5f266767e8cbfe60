package handlers

import (
	"encoding/json"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// SubscriptionHandler handles subscription-status reports
type SubscriptionHandler struct {
	entitlementService *services.EntitlementService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(entitlementService *services.EntitlementService) *SubscriptionHandler {
	return &SubscriptionHandler{entitlementService: entitlementService}
}

// ReportRequest is the body for POST /api/v1/subscription
type ReportRequest struct {
	IsSubscribed bool `json:"is_subscribed"`
}

// Report handles POST /api/v1/subscription. The client re-polls /user/me for
// the partner side, so no event is emitted here.
func (h *SubscriptionHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.entitlementService.Report(ctx, identity, req.IsSubscribed); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to report subscription status")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"is_pro":             identity.IsPro,
		"is_pro_via_partner": identity.IsProViaPartner,
	})
}
