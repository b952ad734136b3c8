package postgres

import (
	"context"
	"fmt"

	"quiz-proctor-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionStore reads questions and options from Postgres.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) ListQuestions(ctx context.Context, topicID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic_id, question FROM questions WHERE topic_id=$1 ORDER BY position, id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.TopicID, &q.Text); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *QuestionStore) ListOptions(ctx context.Context, questionIDs []string) ([]domain.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question_id, option_text, is_correct FROM options WHERE question_id = ANY($1) ORDER BY question_id, position, id`,
		questionIDs)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	options := []domain.Option{}
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Correct); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}
