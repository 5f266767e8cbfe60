package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"nearish-backend/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// respondDomainError maps domain errors to HTTP status codes
func respondDomainError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrSessionExpired):
		statusCode = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrCodeNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, models.ErrNotOwner):
		statusCode = http.StatusForbidden
	case errors.Is(err, models.ErrAlreadyPaired),
		errors.Is(err, models.ErrSelfConnect),
		errors.Is(err, models.ErrNotPaired),
		errors.Is(err, models.ErrInvalidSession),
		errors.Is(err, models.ErrNoActiveSession):
		statusCode = http.StatusBadRequest
	case errors.Is(err, models.ErrTargetAlreadyPaired):
		statusCode = http.StatusConflict
	case errors.Is(err, models.ErrUpstreamUnavailable):
		statusCode = http.StatusBadGateway
	}
	respondError(w, err.Error(), statusCode)
}
