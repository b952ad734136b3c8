package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches Question Store reads with a TTL to avoid repeated DB hits.
// Empty topics are not cached so newly seeded content shows up immediately.
type QuestionCache struct {
	store app.QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	questions []domain.Question
	options   []domain.Option
	expiresAt time.Time
}

func NewQuestionCache(store app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedEntry),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context, topicID string) ([]domain.Question, error) {
	entry, err := c.get(ctx, "questions:"+topicID, func() (cachedEntry, bool, error) {
		questions, err := c.store.ListQuestions(ctx, topicID)
		return cachedEntry{questions: questions}, len(questions) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return entry.questions, nil
}

func (c *QuestionCache) ListOptions(ctx context.Context, questionIDs []string) ([]domain.Option, error) {
	entry, err := c.get(ctx, "options:"+optionsKey(questionIDs), func() (cachedEntry, bool, error) {
		options, err := c.store.ListOptions(ctx, questionIDs)
		return cachedEntry{options: options}, len(options) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return entry.options, nil
}

func (c *QuestionCache) get(ctx context.Context, key string, load func() (cachedEntry, bool, error)) (cachedEntry, error) {
	if entry, ok := c.lookup(key); ok {
		return entry, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if entry, ok := c.lookup(key); ok {
			return entry, nil
		}

		entry, cacheable, err := load()
		if err != nil {
			return cachedEntry{}, err
		}
		if cacheable {
			entry.expiresAt = c.clock().Add(c.ttlWithJitter())
			c.mu.Lock()
			c.cache[key] = entry
			c.mu.Unlock()
		}
		return entry, nil
	})
	if err != nil {
		return cachedEntry{}, err
	}
	return result.(cachedEntry), nil
}

func (c *QuestionCache) lookup(key string) (cachedEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return cachedEntry{}, false
	}
	return entry, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func optionsKey(questionIDs []string) string {
	ids := append([]string(nil), questionIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
