package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nearish-backend/internal/models"
)

// maxAvoidHints caps how many existing question texts are sent to the model
// as avoid hints, to keep the prompt small.
const maxAvoidHints = 40

// GenerateService calls an OpenAI-compatible chat completions endpoint to
// produce new question texts for a game's pool.
type GenerateService struct {
	httpClient *http.Client
	apiKey     string
	apiURL     string
	model      string
}

// NewGenerateService creates a new generation service
func NewGenerateService(apiKey, apiURL, model string) *GenerateService {
	return &GenerateService{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		apiURL:     apiURL,
		model:      model,
	}
}

// IsAvailable reports whether the service is configured
func (s *GenerateService) IsAvailable() bool {
	return s.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate asks the model for count new items for a game. Items already in
// avoid should not be repeated. Returns the generated texts; structured items
// are serialized back to JSON text. A failing or empty response is the
// caller's cue to proceed without new questions -- there is no retry here.
func (s *GenerateService) Generate(ctx context.Context, systemPrompt string, avoid []string, count int) ([]string, error) {
	if !s.IsAvailable() {
		return nil, models.ErrUpstreamUnavailable
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique, engaging, and thoughtful items for the game.\n\n", count)
	fmt.Fprintf(&b, "Context/Rules: %s\n\n", systemPrompt)
	b.WriteString("The output must be a valid JSON array. It can be an array of strings OR an array of JSON objects, depending on the rules above. Do not output anything else.\n")
	if len(avoid) > 0 {
		hints := avoid
		if len(hints) > maxAvoidHints {
			hints = hints[:maxAvoidHints]
		}
		b.WriteString("\nDo not repeat any of these existing items:\n")
		for _, text := range hints {
			fmt.Fprintf(&b, "- %s\n", text)
		}
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful relationship coach assistant."},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUpstreamUnavailable, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", models.ErrUpstreamUnavailable)
	}

	return parseGeneratedItems(chat.Choices[0].Message.Content)
}

// parseGeneratedItems extracts question texts from the model output, which
// must be a JSON array of strings or objects (objects are kept as JSON text).
func parseGeneratedItems(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, fmt.Errorf("model output is not a JSON array: %w", err)
	}

	var texts []string
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			str = strings.TrimSpace(str)
			if str != "" {
				texts = append(texts, str)
			}
			continue
		}
		// Structured record: store it serialized, compact.
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			continue
		}
		texts = append(texts, buf.String())
	}
	return texts, nil
}
