package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(ProviderConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	return p
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
	}
}

func TestOpenAIProviderStructuredOutput(t *testing.T) {
	var got struct {
		Messages       []map[string]any `json:"messages"`
		ResponseFormat map[string]any   `json:"response_format"`
	}
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(`{"isToxic":false,"reason":"polite"}`))
	})

	resp, err := p.Generate(context.Background(), UserPrompt("moderate", "hello", verdictSchema(), 64))
	require.NoError(t, err)
	require.JSONEq(t, `{"isToxic":false,"reason":"polite"}`, string(resp.Content))
	require.Equal(t, 40, resp.Usage.InputTokens)
	require.Equal(t, "end", resp.StopReason)

	require.Equal(t, string(openai.ChatCompletionResponseFormatTypeJSONSchema), got.ResponseFormat["type"])
	require.Len(t, got.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0]["role"])
}

func TestOpenAIProviderRejectsNonConformingOutput(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(`Here you go: {"isToxic":true}`))
	})

	_, err := p.Generate(context.Background(), UserPrompt("moderate", "hello", verdictSchema(), 64))
	var invalid *ErrInvalidResponse
	require.ErrorAs(t, err, &invalid)
}

func TestOpenAIProviderRateLimit(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit_error"},
		})
	})

	_, err := p.Generate(context.Background(), UserPrompt("", "hello", nil, 16))
	var rl *ErrRateLimit
	require.ErrorAs(t, err, &rl)
}

func TestOpenAIProviderServerError(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Generate(context.Background(), UserPrompt("", "hello", nil, 16))
	var unavailable *ErrProviderUnavailable
	require.ErrorAs(t, err, &unavailable)
}
