package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"quiz-proctor-service/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// ProgressRecorder stores attempts in a local SQLite file for single-node deployments.
type ProgressRecorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewProgressRecorder(path string) (*ProgressRecorder, error) {
	if strings.TrimSpace(path) == "" {
		path = "progress.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	rec := &ProgressRecorder{db: db, now: time.Now}
	if err := rec.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return rec, nil
}

func (r *ProgressRecorder) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			topic_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_progress_user_topic ON progress(user_id, topic_id);`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ProgressRecorder) Close() error {
	return r.db.Close()
}

func (r *ProgressRecorder) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO progress (user_id, topic_id, score, created_at_unix) VALUES (?, ?, ?, ?)`,
		attempt.UserID, attempt.TopicID, attempt.Score, r.now().Unix())
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

func (r *ProgressRecorder) ListCompletedTopics(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT topic_id FROM progress WHERE user_id = ? ORDER BY topic_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		topics = append(topics, id)
	}
	return topics, rows.Err()
}
