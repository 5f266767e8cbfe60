package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nearish-backend/internal/models"
)

func TestParseGeneratedItemsStrings(t *testing.T) {
	texts, err := parseGeneratedItems(`["What made you smile today?", "  ", "Describe your perfect Sunday."]`)
	if err != nil {
		t.Fatalf("parseGeneratedItems: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("items = %d, want 2 (blank dropped)", len(texts))
	}
	if texts[0] != "What made you smile today?" {
		t.Fatalf("first item = %q", texts[0])
	}
}

func TestParseGeneratedItemsCodeFence(t *testing.T) {
	texts, err := parseGeneratedItems("```json\n[\"A?\", \"B?\"]\n```")
	if err != nil {
		t.Fatalf("parseGeneratedItems: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("items = %d, want 2", len(texts))
	}
}

func TestParseGeneratedItemsObjects(t *testing.T) {
	texts, err := parseGeneratedItems(`[{"prompt": "Truth or dare?", "level":  2}]`)
	if err != nil {
		t.Fatalf("parseGeneratedItems: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("items = %d, want 1", len(texts))
	}
	if texts[0] != `{"prompt":"Truth or dare?","level":2}` {
		t.Fatalf("object not stored compact: %q", texts[0])
	}
}

func TestParseGeneratedItemsNotArray(t *testing.T) {
	if _, err := parseGeneratedItems(`{"oops": true}`); err == nil {
		t.Fatal("expected an error for non-array output")
	}
	if _, err := parseGeneratedItems("Sorry, I can't do that."); err == nil {
		t.Fatal("expected an error for prose output")
	}
}

func TestGenerateUnconfigured(t *testing.T) {
	svc := NewGenerateService("", "http://localhost", "model")
	if svc.IsAvailable() {
		t.Fatal("service without an API key reported available")
	}
	if _, err := svc.Generate(context.Background(), "prompt", nil, 10); !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}

func TestGenerateCallsEndpoint(t *testing.T) {
	var gotAuth string
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `["New question one?", "New question two?"]`}},
			},
		})
	}))
	defer server.Close()

	svc := NewGenerateService("test-key", server.URL, "test-model")
	texts, err := svc.Generate(context.Background(), "Ask about feelings.", []string{"Old question?"}, 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("items = %d, want 2", len(texts))
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if !strings.Contains(gotPrompt, "Ask about feelings.") {
		t.Fatal("system prompt missing from request")
	}
	if !strings.Contains(gotPrompt, "Old question?") {
		t.Fatal("avoid hint missing from request")
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewGenerateService("test-key", server.URL, "test-model")
	if _, err := svc.Generate(context.Background(), "prompt", nil, 10); !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("got %v, want ErrUpstreamUnavailable", err)
	}
}
