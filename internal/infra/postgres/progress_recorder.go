package postgres

import (
	"context"
	"fmt"

	"quiz-proctor-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProgressRecorder stores attempts in the progress table.
type ProgressRecorder struct {
	pool *pgxpool.Pool
}

func NewProgressRecorder(pool *pgxpool.Pool) *ProgressRecorder {
	return &ProgressRecorder{pool: pool}
}

func (r *ProgressRecorder) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO progress (user_id, topic_id, score) VALUES ($1, $2, $3)`,
		attempt.UserID, attempt.TopicID, attempt.Score)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

func (r *ProgressRecorder) ListCompletedTopics(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT topic_id FROM progress WHERE user_id=$1 ORDER BY topic_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		topics = append(topics, id)
	}
	return topics, rows.Err()
}
