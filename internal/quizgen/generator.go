package quizgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"friction-gate/internal/domain"
	"friction-gate/internal/llm"
)

// maxArticleRunes bounds how much of the article goes into the prompt.
const maxArticleRunes = 1000

const systemPrompt = "You are a teacher generating a quiz. Output valid JSON only."

// QuizSchema accepts exactly three four-option questions.
var QuizSchema = &llm.Schema{
	Name:        "comprehension-quiz",
	Description: "A reading comprehension quiz about an article",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"minItems": 3,
				"maxItems": 3,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":   map[string]any{"type": "integer"},
						"text": map[string]any{"type": "string", "minLength": 1},
						"options": map[string]any{
							"type":     "array",
							"minItems": 4,
							"maxItems": 4,
							"items":    map[string]any{"type": "string"},
						},
						"correctOptionIndex": map[string]any{
							"type":        "integer",
							"minimum":     0,
							"maximum":     3,
							"description": "Zero-based index of the correct option",
						},
					},
					"required":             []any{"id", "text", "options", "correctOptionIndex"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"questions"},
		"additionalProperties": false,
	},
}

// LLMGenerator asks a language model for a comprehension quiz.
type LLMGenerator struct {
	provider  llm.Provider
	maxTokens int
}

func New(provider llm.Provider) *LLMGenerator {
	return &LLMGenerator{provider: provider, maxTokens: 1024}
}

func (g *LLMGenerator) Generate(ctx context.Context, articleText string) (domain.Quiz, error) {
	ctx = llm.WithPurpose(ctx, "quiz-gen")

	resp, err := g.provider.Generate(ctx, llm.UserPrompt(systemPrompt, buildPrompt(articleText), QuizSchema, g.maxTokens))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate quiz: %w", err)
	}

	var quiz domain.Quiz
	if err := json.Unmarshal(resp.Content, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func buildPrompt(articleText string) string {
	article := []rune(articleText)
	suffix := ""
	if len(article) > maxArticleRunes {
		article = article[:maxArticleRunes]
		suffix = "... (truncated)"
	}
	return fmt.Sprintf(`Generate a reading comprehension quiz based on the following article text.
The user is trying to post a toxic comment and must prove they read the article.

Article: %q%s

Create 3 multiple choice questions with 4 options each, numbered from 1.
Return a JSON object with a "questions" array whose items have id, text, options and correctOptionIndex (0-3).`, string(article), suffix)
}

// ArticleKey identifies an article for quiz caching.
func ArticleKey(articleText string) string {
	sum := sha256.Sum256([]byte(articleText))
	return hex.EncodeToString(sum[:])
}
