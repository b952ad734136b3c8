package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session id is unknown.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when a torn-down session is driven or receives a late fetch result.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrInvalidTransition is returned when an action is not allowed in the current session state.
	ErrInvalidTransition = errors.New("action not allowed in current session state")
	// ErrQuestionNotFound indicates a question ID outside the session's question set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionUnanswered gates Next/Submit until the current question has an answer.
	ErrQuestionUnanswered = errors.New("current question has no answer")
	// ErrIncompleteAnswers is returned when submitting with unanswered questions.
	ErrIncompleteAnswers = errors.New("not every question has an answer")
	// ErrNotAtLastQuestion is returned when submitting before reaching the final question.
	ErrNotAtLastQuestion = errors.New("submit is only allowed on the last question")
	// ErrEmptyTopic indicates the topic has no questions.
	ErrEmptyTopic = errors.New("topic has no questions")
	// ErrFetchFailed wraps Question Store failures during data acquisition.
	ErrFetchFailed = errors.New("failed to fetch questions")
	// ErrMalformedQuestion indicates a question without exactly one correct option.
	ErrMalformedQuestion = errors.New("question must have exactly one correct option")
	// ErrFullScreenDenied is returned when full-screen is required but the host refused it.
	ErrFullScreenDenied = errors.New("full-screen request denied")
	// ErrUnauthenticated is returned when no user identity is available.
	ErrUnauthenticated = errors.New("no authenticated user")
)
