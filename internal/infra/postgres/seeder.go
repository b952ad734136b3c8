package postgres

import (
	"context"
	"fmt"

	"quiz-proctor-service/internal/domain"
	"github.com/uptrace/bun"
)

type topicRow struct {
	bun.BaseModel `bun:"table:topics"`

	ID          string `bun:"id,pk"`
	Title       string `bun:"title"`
	Description string `bun:"description"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID       string `bun:"id,pk"`
	TopicID  string `bun:"topic_id"`
	Question string `bun:"question"`
	Position int    `bun:"position"`
}

type optionRow struct {
	bun.BaseModel `bun:"table:options"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id"`
	OptionText string `bun:"option_text"`
	IsCorrect  bool   `bun:"is_correct"`
	Position   int    `bun:"position"`
}

// Seeder upserts a question bank into Postgres.
type Seeder struct {
	db *bun.DB
}

func NewSeeder(db *bun.DB) *Seeder {
	return &Seeder{db: db}
}

// Seed writes every topic, question and option of bank in one transaction.
// Existing rows with the same ids are overwritten.
func (s *Seeder) Seed(ctx context.Context, bank domain.QuestionBank) error {
	var (
		topics    []topicRow
		questions []questionRow
		options   []optionRow
	)
	for _, t := range bank.Topics {
		topics = append(topics, topicRow{ID: t.ID, Title: t.Title, Description: t.Description})
		for qi, q := range t.Questions {
			questions = append(questions, questionRow{ID: q.ID, TopicID: t.ID, Question: q.Text, Position: qi})
			for oi, o := range q.Options {
				options = append(options, optionRow{ID: o.ID, QuestionID: q.ID, OptionText: o.Text, IsCorrect: o.Correct, Position: oi})
			}
		}
	}
	if len(topics) == 0 {
		return nil
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&topics).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("description = EXCLUDED.description").
			Exec(ctx); err != nil {
			return fmt.Errorf("seed topics: %w", err)
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).
				On("CONFLICT (id) DO UPDATE").
				Set("topic_id = EXCLUDED.topic_id").
				Set("question = EXCLUDED.question").
				Set("position = EXCLUDED.position").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed questions: %w", err)
			}
		}
		if len(options) > 0 {
			if _, err := tx.NewInsert().Model(&options).
				On("CONFLICT (id) DO UPDATE").
				Set("question_id = EXCLUDED.question_id").
				Set("option_text = EXCLUDED.option_text").
				Set("is_correct = EXCLUDED.is_correct").
				Set("position = EXCLUDED.position").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed options: %w", err)
			}
		}
		return nil
	})
}
