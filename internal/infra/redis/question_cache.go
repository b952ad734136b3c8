package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches Question Store reads in Redis and falls back to the store on a miss.
// Questions are stored as:  SET quiz:topic:{topicID}:questions   <json []Question>
// Options are stored as:    SET quiz:question:{questionID}:options <json []Option>
type QuestionCache struct {
	client *redis.Client
	store  app.QuestionStore
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionCache(client *redis.Client, store app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		store:  store,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context, topicID string) ([]domain.Question, error) {
	key := questionsKey(topicID)
	if questions, ok := c.cachedQuestions(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cachedQuestions(ctx, key); ok {
			return questions, nil
		}
		questions, err := c.store.ListQuestions(ctx, topicID)
		if err != nil {
			return nil, err
		}
		if len(questions) > 0 {
			if data, err := json.Marshal(questions); err == nil {
				_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) ListOptions(ctx context.Context, questionIDs []string) ([]domain.Option, error) {
	if options, ok := c.cachedOptions(ctx, questionIDs); ok {
		return options, nil
	}

	result, err, _ := c.sf.Do("options:"+strings.Join(questionIDs, ","), func() (interface{}, error) {
		options, err := c.store.ListOptions(ctx, questionIDs)
		if err != nil {
			return nil, err
		}

		byQuestion := make(map[string][]domain.Option, len(questionIDs))
		for _, opt := range options {
			byQuestion[opt.QuestionID] = append(byQuestion[opt.QuestionID], opt)
		}
		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, id := range questionIDs {
			group := byQuestion[id]
			if group == nil {
				group = []domain.Option{}
			}
			data, err := json.Marshal(group)
			if err != nil {
				continue
			}
			pipe.Set(ctx, optionsKey(id), data, ttl)
		}
		_, _ = pipe.Exec(ctx)
		return options, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Option), nil
}

func (c *QuestionCache) cachedQuestions(ctx context.Context, key string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

// cachedOptions only succeeds when every question's options are cached.
func (c *QuestionCache) cachedOptions(ctx context.Context, questionIDs []string) ([]domain.Option, bool) {
	if len(questionIDs) == 0 {
		return nil, false
	}
	keys := make([]string, len(questionIDs))
	for i, id := range questionIDs {
		keys[i] = optionsKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, false
		}
	}

	var options []domain.Option
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, false
		}
		var group []domain.Option
		if err := json.Unmarshal([]byte(raw), &group); err != nil {
			return nil, false
		}
		options = append(options, group...)
	}
	return options, true
}

func questionsKey(topicID string) string {
	return "quiz:topic:" + topicID + ":questions"
}

func optionsKey(questionID string) string {
	return "quiz:question:" + questionID + ":options"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
