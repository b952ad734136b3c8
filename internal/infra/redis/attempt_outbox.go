package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const outboxKey = "quiz:attempts:pending"

// RetryingRecorder writes attempts through to a ProgressRecorder and parks
// failed writes in a Redis list until Flush replays them.
type RetryingRecorder struct {
	client *redis.Client
	next   app.ProgressRecorder
}

func NewRetryingRecorder(client *redis.Client, next app.ProgressRecorder) *RetryingRecorder {
	return &RetryingRecorder{client: client, next: next}
}

func (r *RetryingRecorder) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	err := r.next.RecordAttempt(ctx, attempt)
	if err == nil {
		return nil
	}
	data, mErr := json.Marshal(attempt)
	if mErr != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if pushErr := r.client.RPush(ctx, outboxKey, data).Err(); pushErr != nil {
		return fmt.Errorf("record attempt: %w (outbox: %v)", err, pushErr)
	}
	log.Printf("progress: attempt %s/%s queued for retry: %v", attempt.UserID, attempt.TopicID, err)
	return nil
}

func (r *RetryingRecorder) ListCompletedTopics(ctx context.Context, userID string) ([]string, error) {
	return r.next.ListCompletedTopics(ctx, userID)
}

// Pending reports how many attempts wait for a retry.
func (r *RetryingRecorder) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, outboxKey).Result()
}

// Flush replays queued attempts in order. It stops at the first failed write
// and puts that attempt back at the head of the queue.
func (r *RetryingRecorder) Flush(ctx context.Context) (int, error) {
	flushed := 0
	for {
		data, err := r.client.LPop(ctx, outboxKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return flushed, nil
		}
		if err != nil {
			return flushed, err
		}

		var attempt domain.Attempt
		if err := json.Unmarshal(data, &attempt); err != nil {
			log.Printf("progress: dropping unreadable queued attempt: %v", err)
			continue
		}
		if err := r.next.RecordAttempt(ctx, attempt); err != nil {
			_ = r.client.LPush(ctx, outboxKey, data).Err()
			return flushed, err
		}
		flushed++
	}
}

// Run flushes the queue every interval until ctx is done.
func (r *RetryingRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if n > 0 {
				log.Printf("progress: replayed %d queued attempts", n)
			}
			if err != nil {
				log.Printf("progress: retry flush stopped: %v", err)
			}
		}
	}
}
