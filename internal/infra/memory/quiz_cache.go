package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"friction-gate/internal/domain"
	"friction-gate/internal/quizgen"
	"golang.org/x/sync/singleflight"
)

// maxCachedQuizzes triggers a sweep of expired entries on insert.
const maxCachedQuizzes = 1024

// QuizGenerator produces a quiz for an article (e.g., an LLM-backed generator).
type QuizGenerator interface {
	Generate(ctx context.Context, articleText string) (domain.Quiz, error)
}

// QuizCache caches generated quizzes per article with TTL so concurrent
// toxic submissions on one article share a single generation call.
type QuizCache struct {
	generator QuizGenerator
	ttl       time.Duration
	clock     func() time.Time
	sf        singleflight.Group
	rnd       *rand.Rand
	rndMu     sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(generator QuizGenerator, ttl time.Duration) *QuizCache {
	return &QuizCache{
		generator: generator,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) Generate(ctx context.Context, articleText string) (domain.Quiz, error) {
	key := quizgen.ArticleKey(articleText)
	if quiz, ok := c.lookup(key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if quiz, ok := c.lookup(key); ok {
			return quiz, nil
		}

		quiz, err := c.generator.Generate(ctx, articleText)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.store(key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

func (c *QuizCache) lookup(key string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(c.clock()) {
		return entry.quiz.Clone(), true
	}
	return domain.Quiz{}, false
}

func (c *QuizCache) store(key string, quiz domain.Quiz) {
	if c.ttl <= 0 {
		return
	}
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= maxCachedQuizzes {
		for k, entry := range c.cache {
			if !entry.expiresAt.After(now) {
				delete(c.cache, k)
			}
		}
	}
	c.cache[key] = cachedQuiz{quiz: quiz.Clone(), expiresAt: now.Add(c.ttlWithJitter())}
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
