package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"nearish-backend/internal/middleware"
	"nearish-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler serves the event stream over WebSocket and SSE. Both
// transports drain a bus subscription and deliver events in publish order,
// with no replay after reconnect.
type EventsHandler struct {
	bus         *services.EventBus
	authService *services.AuthService
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(bus *services.EventBus, authService *services.AuthService) *EventsHandler {
	return &EventsHandler{bus: bus, authService: authService}
}

// StreamToken handles GET /api/v1/events/token. Stream transports
// authenticate with a short-lived token in the query string because
// EventSource and browser WebSocket clients cannot set headers.
func (h *EventsHandler) StreamToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	token, err := h.authService.IssueStreamToken(identity.ID)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to issue stream token")
		respondError(w, "Failed to issue stream token", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *EventsHandler) identityFromQuery(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", fmt.Errorf("token required")
	}
	return h.authService.ValidateStreamToken(token)
}

// ServeSSE handles GET /api/v1/events?token=...
func (h *EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	identityID, err := h.identityFromQuery(r)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.bus.Subscribe(identityID)
	defer h.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", ev.Payload)
			flusher.Flush()
		}
	}
}

// wsEnvelope is how events appear on the WebSocket transport
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServeWS handles GET /ws?token=...
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identityID, err := h.identityFromQuery(r)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(identityID)
	defer h.bus.Unsubscribe(sub)

	log.Info().Str("identity_id", identityID).Msg("WebSocket connection established")

	// Read pump: clients send nothing meaningful, but reading is what
	// detects disconnect.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Error().Err(err).Str("identity_id", identityID).Msg("WebSocket error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-readClosed:
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			msg, err := json.Marshal(wsEnvelope{Event: ev.Type, Data: ev.Payload})
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
