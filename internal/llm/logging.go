package llm

import (
	"context"
	"log"
	"time"
)

type contextKey string

const purposeKey contextKey = "llm_purpose"

// WithPurpose labels requests made with ctx, e.g. "toxicity" or "quiz-gen".
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from ctx.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

type loggingProvider struct {
	inner Provider
}

// WithLogging logs the latency, token usage and outcome of every request.
// Prompts and responses are not logged since they carry user comments.
func WithLogging(p Provider) Provider {
	return &loggingProvider{inner: p}
}

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		log.Printf("llm %s purpose=%s latency=%dms error: %v", l.inner.ModelID(), PurposeFrom(ctx), latency, err)
		return nil, err
	}
	log.Printf("llm %s purpose=%s latency=%dms tokens=%d/%d stop=%s",
		resp.Model, PurposeFrom(ctx), latency, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason)
	return resp, nil
}

func (l *loggingProvider) ModelID() string {
	return l.inner.ModelID()
}
