package app

import (
	"math"

	"quiz-proctor-service/internal/domain"
)

// PassPercent is the minimum rounded percentage needed to pass a topic.
const PassPercent = 70

// Score counts the questions whose recorded answer is the option flagged correct.
func Score(questions []domain.Question, options []domain.Option, answers map[string]string) int {
	byID := make(map[string]domain.Option, len(options))
	for _, opt := range options {
		byID[opt.ID] = opt
	}

	correct := 0
	for _, q := range questions {
		selected, ok := answers[q.ID]
		if !ok {
			continue
		}
		opt, ok := byID[selected]
		if ok && opt.QuestionID == q.ID && opt.Correct {
			correct++
		}
	}
	return correct
}

// Grade turns a raw score into the result shown to the quiz taker.
func Grade(topicID string, score, total int) domain.Result {
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(score) / float64(total) * 100))
	}
	return domain.Result{
		TopicID: topicID,
		Score:   score,
		Total:   total,
		Percent: percent,
		Passed:  percent >= PassPercent,
	}
}

// validateOptions checks that every question has exactly one correct option.
func validateOptions(questions []domain.Question, byQuestion map[string][]domain.Option) error {
	for _, q := range questions {
		correct := 0
		for _, opt := range byQuestion[q.ID] {
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			return &MalformedQuestionError{QuestionID: q.ID, Correct: correct}
		}
	}
	return nil
}

// MalformedQuestionError reports the offending question; it matches domain.ErrMalformedQuestion.
type MalformedQuestionError struct {
	QuestionID string
	Correct    int
}

func (e *MalformedQuestionError) Error() string {
	return "question " + e.QuestionID + ": " + domain.ErrMalformedQuestion.Error()
}

func (e *MalformedQuestionError) Unwrap() error { return domain.ErrMalformedQuestion }
