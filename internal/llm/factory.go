package llm

import (
	"context"
	"fmt"
)

// ProviderConfig selects and configures one model provider.
type ProviderConfig struct {
	// Provider is one of "openai", "anthropic", "gemini", "mock", or "" for none.
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the endpoint, e.g. an OpenAI-compatible gateway.
	BaseURL string
	Retry   RetryConfig
}

// NewProvider builds the configured provider wrapped as caller → retry → logging → base.
// It returns a nil Provider when no provider is configured.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "mock":
		return NewMockProvider(), nil
	case "openai":
		base, err = NewOpenAIProvider(cfg)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return WithRetry(WithLogging(base), cfg.Retry), nil
}
