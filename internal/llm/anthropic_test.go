package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: defaultAnthropicModel}
}

func anthropicMessage(text string) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       defaultAnthropicModel,
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
	}
}

func anthropicError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]any{"type": kind, "message": kind},
	})
}

func TestAnthropicProviderStructuredOutput(t *testing.T) {
	var got struct {
		System       []map[string]any `json:"system"`
		OutputConfig struct {
			Format map[string]any `json:"format"`
		} `json:"output_config"`
	}
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicMessage(`{"isToxic":true,"reason":"insult"}`))
	})

	resp, err := p.Generate(context.Background(), UserPrompt("moderate", "you idiot", verdictSchema(), 64))
	require.NoError(t, err)
	require.JSONEq(t, `{"isToxic":true,"reason":"insult"}`, string(resp.Content))
	require.Equal(t, 50, resp.Usage.InputTokens)
	require.Equal(t, 30, resp.Usage.OutputTokens)
	require.Equal(t, "end", resp.StopReason)

	require.Len(t, got.System, 1)
	require.Equal(t, "moderate", got.System[0]["text"])
	require.Equal(t, "json_schema", got.OutputConfig.Format["type"])
	require.NotNil(t, got.OutputConfig.Format["schema"])
}

func TestAnthropicProviderRejectsNonConformingOutput(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicMessage(`{"isToxic":"maybe"}`))
	})

	_, err := p.Generate(context.Background(), UserPrompt("moderate", "hello", verdictSchema(), 64))
	var invalid *ErrInvalidResponse
	require.ErrorAs(t, err, &invalid)
}

func TestAnthropicProviderRateLimit(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		anthropicError(w, http.StatusTooManyRequests, "rate_limit_error")
	})

	_, err := p.Generate(context.Background(), UserPrompt("", "hello", nil, 16))
	var rl *ErrRateLimit
	require.ErrorAs(t, err, &rl)
}

func TestAnthropicProviderServerError(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		anthropicError(w, http.StatusInternalServerError, "api_error")
	})

	_, err := p.Generate(context.Background(), UserPrompt("", "hello", nil, 16))
	var unavailable *ErrProviderUnavailable
	require.ErrorAs(t, err, &unavailable)
	var rl *ErrRateLimit
	require.False(t, errors.As(err, &rl))
}

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider(ProviderConfig{})
	require.Error(t, err)

	p, err := NewAnthropicProvider(ProviderConfig{APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, defaultAnthropicModel, p.ModelID())
}
