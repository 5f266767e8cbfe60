package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"nearish-backend/internal/models"
)

func TestRespondDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrUnauthenticated, http.StatusUnauthorized},
		{models.ErrSessionExpired, http.StatusUnauthorized},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrCodeNotFound, http.StatusNotFound},
		{models.ErrNotOwner, http.StatusForbidden},
		{models.ErrAlreadyPaired, http.StatusBadRequest},
		{models.ErrSelfConnect, http.StatusBadRequest},
		{models.ErrNotPaired, http.StatusBadRequest},
		{models.ErrInvalidSession, http.StatusBadRequest},
		{models.ErrNoActiveSession, http.StatusBadRequest},
		{models.ErrTargetAlreadyPaired, http.StatusConflict},
		{models.ErrUpstreamUnavailable, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		respondDomainError(rec, c.err)
		if rec.Code != c.want {
			t.Fatalf("%v mapped to %d, want %d", c.err, rec.Code, c.want)
		}
		var body ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body for %v: %v", c.err, err)
		}
		if body.Error == "" {
			t.Fatalf("empty error message for %v", c.err)
		}
	}
}

func TestRespondDomainErrorWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	respondDomainError(rec, fmt.Errorf("connect: %w", models.ErrTargetAlreadyPaired))
	if rec.Code != http.StatusConflict {
		t.Fatalf("wrapped error mapped to %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]bool{"success": true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body["success"] {
		t.Fatal("body missing success flag")
	}
}
