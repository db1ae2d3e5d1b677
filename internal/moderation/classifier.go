package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"friction-gate/internal/domain"
	"friction-gate/internal/llm"
)

// FallbackReason is reported when the keyword list flags a comment.
const FallbackReason = "Contains toxic keywords (fallback detection)"

// DefaultKeywords is the local toxic-term list used when no model is reachable.
var DefaultKeywords = []string{"stupid", "idiot", "hate", "kill", "ugly"}

// KeywordClassifier flags comments containing any keyword, case-insensitively.
type KeywordClassifier struct {
	keywords []string
}

func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordClassifier{keywords: lowered}
}

func (c *KeywordClassifier) Classify(_ context.Context, text string) (domain.Verdict, error) {
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return domain.Verdict{Toxic: true, Reason: FallbackReason}, nil
		}
	}
	return domain.Verdict{}, nil
}

// VerdictSchema is the only shape accepted from the model.
var VerdictSchema = &llm.Schema{
	Name:        "toxicity-verdict",
	Description: "Whether a comment is toxic and why",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isToxic": map[string]any{
				"type":        "boolean",
				"description": "True when the comment is toxic, aggressive or harmful",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "One short sentence explaining the verdict",
			},
		},
		"required":             []any{"isToxic", "reason"},
		"additionalProperties": false,
	},
}

const systemPrompt = "You are a content moderation AI. Output valid JSON only."

// LLMClassifier asks a language model for a toxicity verdict.
type LLMClassifier struct {
	provider  llm.Provider
	maxTokens int
}

func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider, maxTokens: 256}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	ctx = llm.WithPurpose(ctx, "toxicity")
	prompt := fmt.Sprintf("Analyze the following comment for toxicity, aggression, or harmful content.\nComment: %q\n\nReturn a JSON object with the fields isToxic and reason.", text)

	resp, err := c.provider.Generate(ctx, llm.UserPrompt(systemPrompt, prompt, VerdictSchema, c.maxTokens))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classify comment: %w", err)
	}
	var verdict domain.Verdict
	if err := json.Unmarshal(resp.Content, &verdict); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return verdict, nil
}
