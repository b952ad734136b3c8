package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-proctor-service/internal/domain"
)

// ProgressRecorder keeps attempts in memory.
type ProgressRecorder struct {
	mu       sync.RWMutex
	attempts []domain.Attempt
}

func NewProgressRecorder() *ProgressRecorder {
	return &ProgressRecorder{}
}

func (r *ProgressRecorder) RecordAttempt(_ context.Context, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *ProgressRecorder) ListCompletedTopics(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	topics := []string{}
	for _, a := range r.attempts {
		if a.UserID != userID {
			continue
		}
		if _, ok := seen[a.TopicID]; ok {
			continue
		}
		seen[a.TopicID] = struct{}{}
		topics = append(topics, a.TopicID)
	}
	sort.Strings(topics)
	return topics, nil
}

// Attempts returns a copy of every recorded attempt.
func (r *ProgressRecorder) Attempts() []domain.Attempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}
