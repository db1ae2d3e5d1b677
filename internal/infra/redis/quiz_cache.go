package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"friction-gate/internal/domain"
	"friction-gate/internal/quizgen"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizGenerator produces a quiz for an article (e.g., an LLM-backed generator).
type QuizGenerator interface {
	Generate(ctx context.Context, articleText string) (domain.Quiz, error)
}

// QuizCache caches generated quizzes in Redis and falls back to the generator on miss.
// Quizzes are stored as: SET gate:quiz:{sha256(article)} {json}
type QuizCache struct {
	client    *redis.Client
	generator QuizGenerator
	ttl       time.Duration
	sf        singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizCache(client *redis.Client, generator QuizGenerator, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client:    client,
		generator: generator,
		ttl:       ttl,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) Generate(ctx context.Context, articleText string) (domain.Quiz, error) {
	key := c.key(quizgen.ArticleKey(articleText))
	if quiz, ok := c.lookup(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, key); ok {
			return quiz, nil
		}

		quiz, err := c.generator.Generate(ctx, articleText)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if data, err := json.Marshal(quiz); err == nil {
				_ = c.client.Set(ctx, key, data, ttl).Err()
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

// lookup treats any Redis failure as a miss; the generator is the source of truth.
func (c *QuizCache) lookup(ctx context.Context, key string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	if quiz.Validate() != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) key(digest string) string {
	return "gate:quiz:" + digest
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
