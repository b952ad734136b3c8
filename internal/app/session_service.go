package app

import (
	"context"

	"quiz-proctor-service/internal/domain"

	"github.com/google/uuid"
)

// QuestionStore is the read-only source of a topic's questions and their options.
type QuestionStore interface {
	ListQuestions(ctx context.Context, topicID string) ([]domain.Question, error)
	ListOptions(ctx context.Context, questionIDs []string) ([]domain.Option, error)
}

// ProgressRecorder persists completed attempts and reports which topics a user finished.
type ProgressRecorder interface {
	RecordAttempt(ctx context.Context, attempt domain.Attempt) error
	ListCompletedTopics(ctx context.Context, userID string) ([]string, error)
}

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Controller)
	Get(sessionID string) (*Controller, bool)
	Delete(sessionID string)
}

// SessionService opens, tracks and tears down quiz sessions.
type SessionService struct {
	sessions  SessionRepository
	questions QuestionStore
	progress  ProgressRecorder
	policy    Policy
	newID     func() string
}

func NewSessionService(sessions SessionRepository, questions QuestionStore, progress ProgressRecorder, policy Policy) *SessionService {
	return &SessionService{
		sessions:  sessions,
		questions: questions,
		progress:  progress,
		policy:    policy,
		newID:     func() string { return uuid.NewString() },
	}
}

// Open registers a fresh session for topicID and loads its questions. The
// session is returned even when loading fails so the caller can render its
// terminal state.
func (s *SessionService) Open(ctx context.Context, topicID string, identity IdentityProvider, screen Screen) (*Controller, error) {
	session := NewController(s.newID(), topicID, Collaborators{
		Questions: s.questions,
		Progress:  s.progress,
		Identity:  identity,
		Screen:    screen,
	}, s.policy)
	s.sessions.Put(session)
	return session, session.Load(ctx)
}

// Get looks up a live session.
func (s *SessionService) Get(sessionID string) (*Controller, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Close tears a session down and forgets it.
func (s *SessionService) Close(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
}

// CompletedTopics lists the topics userID has an attempt recorded for.
func (s *SessionService) CompletedTopics(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.progress.ListCompletedTopics(ctx, userID)
}
