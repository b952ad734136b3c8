package memory

import (
	"context"

	"quiz-proctor-service/internal/domain"
)

// StaticQuestionStore serves a question bank held in memory (useful for tests/demos).
type StaticQuestionStore struct {
	questions map[string][]domain.Question
	options   map[string][]domain.Option
}

func NewStaticQuestionStore(bank domain.QuestionBank) *StaticQuestionStore {
	_, questions, options := bank.Flatten()
	s := &StaticQuestionStore{
		questions: make(map[string][]domain.Question),
		options:   make(map[string][]domain.Option),
	}
	for _, q := range questions {
		s.questions[q.TopicID] = append(s.questions[q.TopicID], q)
	}
	for _, o := range options {
		s.options[o.QuestionID] = append(s.options[o.QuestionID], o)
	}
	return s
}

func (s *StaticQuestionStore) ListQuestions(_ context.Context, topicID string) ([]domain.Question, error) {
	questions := s.questions[topicID]
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

func (s *StaticQuestionStore) ListOptions(_ context.Context, questionIDs []string) ([]domain.Option, error) {
	var out []domain.Option
	for _, id := range questionIDs {
		out = append(out, s.options[id]...)
	}
	return out, nil
}
