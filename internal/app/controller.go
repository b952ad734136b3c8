package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-proctor-service/internal/domain"
)

// Screen is the host environment's full-screen API. Both calls are best-effort.
type Screen interface {
	RequestFullScreen(ctx context.Context) error
	ExitFullScreen(ctx context.Context) error
}

// ConfirmingScreen is a Screen whose requests are granted later by the host.
// The outcome arrives through Controller.FullScreenChanged.
type ConfirmingScreen interface {
	Screen
	AwaitsConfirmation()
}

var (
	errFullScreenRefused     = errors.New("host refused full-screen")
	errFullScreenUnconfirmed = errors.New("full-screen not confirmed in time")
)

// IdentityProvider resolves the current user, if any.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// IdentityFunc adapts a plain function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (string, bool)

func (f IdentityFunc) CurrentUserID(ctx context.Context) (string, bool) { return f(ctx) }

// Anonymous never resolves a user; attempts taken with it are not recorded.
var Anonymous IdentityProvider = IdentityFunc(func(context.Context) (string, bool) { return "", false })

// Collaborators are the external services a Controller is driven by.
type Collaborators struct {
	Questions QuestionStore
	Progress  ProgressRecorder
	Identity  IdentityProvider
	Screen    Screen
}

// Policy holds the decisions the proctoring and loading flow leaves open.
type Policy struct {
	// RequireFullScreen blocks Start when the host refuses full-screen.
	RequireFullScreen bool
	// ValidateOptions rejects questions without exactly one correct option at load time.
	ValidateOptions bool
	// ConfirmTimeout bounds how long Start waits for a ConfirmingScreen to
	// report full-screen when RequireFullScreen is set.
	ConfirmTimeout time.Duration
	// PersistTimeout bounds the background attempt write.
	PersistTimeout time.Duration
}

func (p Policy) confirmTimeout() time.Duration {
	if p.ConfirmTimeout <= 0 {
		return 5 * time.Second
	}
	return p.ConfirmTimeout
}

func (p Policy) persistTimeout() time.Duration {
	if p.PersistTimeout <= 0 {
		return 10 * time.Second
	}
	return p.PersistTimeout
}

// Failure reasons reported in snapshots of empty sessions.
const (
	FailureNoQuestions = "no_questions"
	FailureFetch       = "fetch_failed"
	FailureMalformed   = "malformed_question"
)

// Controller is the state machine of a single quiz session.
type Controller struct {
	id      string
	topicID string
	deps    Collaborators
	policy  Policy

	pending sync.WaitGroup
	done    chan struct{}

	mu          sync.Mutex
	closed      bool
	loading     bool
	starting    bool
	state       domain.State
	failure     string
	questions   []domain.Question
	options     []domain.Option
	byQuestion  map[string][]domain.Option
	answers     map[string]string
	cursor      int
	fullScreen  bool
	fsAck       chan bool
	result      *domain.Result
	subscribers map[chan domain.Snapshot]struct{}
}

// NewController builds a session in the Loading state. Call Load to fetch its questions.
func NewController(id, topicID string, deps Collaborators, policy Policy) *Controller {
	if deps.Identity == nil {
		deps.Identity = Anonymous
	}
	if deps.Screen == nil {
		deps.Screen = noScreen{}
	}
	return &Controller{
		id:          id,
		topicID:     topicID,
		deps:        deps,
		policy:      policy,
		state:       domain.StateLoading,
		done:        make(chan struct{}),
		byQuestion:  make(map[string][]domain.Option),
		answers:     make(map[string]string),
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// TopicID returns the topic this session quizzes on.
func (c *Controller) TopicID() string { return c.topicID }

// State returns the current lifecycle state.
func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load fetches the topic's questions and then their options. A topic without
// questions or a failed fetch leaves the session in the terminal Empty state.
// Results arriving after Close are discarded.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateLoading || c.loading {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	c.loading = true
	c.mu.Unlock()

	questions, options, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if c.closed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		c.failLocked(err)
		return err
	}

	byQuestion := make(map[string][]domain.Option, len(questions))
	for _, opt := range options {
		byQuestion[opt.QuestionID] = append(byQuestion[opt.QuestionID], opt)
	}
	if c.policy.ValidateOptions {
		if err := validateOptions(questions, byQuestion); err != nil {
			c.failLocked(err)
			return err
		}
	}

	c.questions = questions
	c.options = options
	c.byQuestion = byQuestion
	c.state = domain.StateNotStarted
	c.broadcastLocked()
	return nil
}

func (c *Controller) fetch(ctx context.Context) ([]domain.Question, []domain.Option, error) {
	questions, err := c.deps.Questions.ListQuestions(ctx, c.topicID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list questions: %w", domain.ErrFetchFailed, err)
	}
	if len(questions) == 0 {
		return nil, nil, domain.ErrEmptyTopic
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	options, err := c.deps.Questions.ListOptions(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list options: %w", domain.ErrFetchFailed, err)
	}
	return questions, options, nil
}

func (c *Controller) failLocked(err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyTopic):
		c.failure = FailureNoQuestions
	case errors.Is(err, domain.ErrMalformedQuestion):
		c.failure = FailureMalformed
	default:
		c.failure = FailureFetch
	}
	log.Printf("session %s: topic %s unavailable: %v", c.id, c.topicID, err)
	c.state = domain.StateEmpty
	c.broadcastLocked()
}

// Start requests full-screen from the host and moves the session to InProgress.
// With RequireFullScreen and a ConfirmingScreen it waits for the host's reply.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateNotStarted || c.starting {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	c.starting = true
	var ack chan bool
	if _, ok := c.deps.Screen.(ConfirmingScreen); ok && c.policy.RequireFullScreen {
		ack = make(chan bool, 1)
		c.fsAck = ack
	}
	c.mu.Unlock()

	fsErr := c.deps.Screen.RequestFullScreen(ctx)
	if fsErr == nil && ack != nil {
		fsErr = c.awaitFullScreen(ctx, ack)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	c.fsAck = nil
	if c.closed {
		return domain.ErrSessionClosed
	}
	if fsErr != nil {
		if c.policy.RequireFullScreen {
			return fmt.Errorf("%w: %w", domain.ErrFullScreenDenied, fsErr)
		}
		log.Printf("session %s: full-screen request failed, starting anyway: %v", c.id, fsErr)
	}
	c.state = domain.StateInProgress
	c.broadcastLocked()
	return nil
}

func (c *Controller) awaitFullScreen(ctx context.Context, ack <-chan bool) error {
	timer := time.NewTimer(c.policy.confirmTimeout())
	defer timer.Stop()
	select {
	case granted := <-ack:
		if !granted {
			return errFullScreenRefused
		}
		return nil
	case <-timer.C:
		return errFullScreenUnconfirmed
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return domain.ErrSessionClosed
	}
}

// FullScreenChanged applies a host full-screen signal. Leaving full-screen while
// in progress raises a violation; repeated exits do not stack. It reports
// whether this call raised the violation.
func (c *Controller) FullScreenChanged(active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullScreen = active
	if c.fsAck != nil {
		// a pending Start consumes the reply; it is not a violation
		select {
		case c.fsAck <- active:
		default:
		}
		return false
	}
	if active || c.closed || c.state != domain.StateInProgress {
		return false
	}
	c.state = domain.StateViolationPending
	c.broadcastLocked()
	return true
}

// Watch feeds full-screen signals into the session until the channel closes or ctx ends.
func (c *Controller) Watch(ctx context.Context, signals <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case active, ok := <-signals:
			if !ok {
				return
			}
			c.FullScreenChanged(active)
		}
	}
}

// AcknowledgeViolation ends a violated session without recording a score.
func (c *Controller) AcknowledgeViolation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateViolationPending {
		return domain.ErrInvalidTransition
	}
	c.state = domain.StateCancelled
	c.broadcastLocked()
	return nil
}

// Select records optionID as the answer to questionID, replacing any earlier answer.
func (c *Controller) Select(questionID, optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	return c.selectLocked(questionID, optionID)
}

// SelectCurrent answers the question under the cursor.
func (c *Controller) SelectCurrent(optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	return c.selectLocked(c.questions[c.cursor].ID, optionID)
}

func (c *Controller) selectLocked(questionID, optionID string) error {
	if !c.hasQuestionLocked(questionID) {
		return domain.ErrQuestionNotFound
	}
	c.answers[questionID] = optionID
	c.broadcastLocked()
	return nil
}

// Advance moves to the next question once the current one is answered.
// At the last question it is a no-op.
func (c *Controller) Advance() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return c.cursor, err
	}
	if !c.currentAnsweredLocked() {
		return c.cursor, domain.ErrQuestionUnanswered
	}
	if c.cursor < len(c.questions)-1 {
		c.cursor++
		c.broadcastLocked()
	}
	return c.cursor, nil
}

// Retreat moves to the previous question. At the first question it is a no-op.
func (c *Controller) Retreat() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return c.cursor, err
	}
	if c.cursor > 0 {
		c.cursor--
		c.broadcastLocked()
	}
	return c.cursor, nil
}

// Submit scores the session, shows results and records the attempt in the
// background. Submission is only possible from the answered last question.
func (c *Controller) Submit(ctx context.Context) (domain.Result, error) {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return domain.Result{}, err
	}
	if c.cursor != len(c.questions)-1 {
		c.mu.Unlock()
		return domain.Result{}, domain.ErrNotAtLastQuestion
	}
	if !c.currentAnsweredLocked() {
		c.mu.Unlock()
		return domain.Result{}, domain.ErrQuestionUnanswered
	}
	for _, q := range c.questions {
		if _, ok := c.answers[q.ID]; !ok {
			c.mu.Unlock()
			return domain.Result{}, domain.ErrIncompleteAnswers
		}
	}

	result := Grade(c.topicID, Score(c.questions, c.options, c.answers), len(c.questions))
	c.result = &result
	c.state = domain.StateResults
	c.broadcastLocked()
	c.mu.Unlock()

	if err := c.deps.Screen.ExitFullScreen(ctx); err != nil {
		log.Printf("session %s: exit full-screen failed: %v", c.id, err)
	}
	c.recordAttempt(ctx, result)
	return result, nil
}

// recordAttempt is a best-effort write: the result is already final locally,
// so a missing user or a failed write is only logged.
func (c *Controller) recordAttempt(ctx context.Context, result domain.Result) {
	if c.deps.Progress == nil {
		return
	}
	userID, ok := c.deps.Identity.CurrentUserID(ctx)
	if !ok {
		log.Printf("session %s: no authenticated user, attempt not recorded", c.id)
		return
	}
	attempt := domain.Attempt{UserID: userID, TopicID: c.topicID, Score: result.Score}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.policy.persistTimeout())
		defer cancel()
		if err := c.deps.Progress.RecordAttempt(writeCtx, attempt); err != nil {
			log.Printf("session %s: record attempt failed: %v", c.id, err)
		}
	}()
}

// Wait blocks until background attempt writes have finished.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Close tears the session down. Subscriptions end and late fetch results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
}

// Snapshot returns the current render-ready view of the session.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Controller) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Controller) activeLocked() error {
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateInProgress {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (c *Controller) hasQuestionLocked(questionID string) bool {
	for _, q := range c.questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func (c *Controller) currentAnsweredLocked() bool {
	_, ok := c.answers[c.questions[c.cursor].ID]
	return ok
}

func (c *Controller) broadcastLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest pending snapshot so a slow reader never blocks a transition
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:  c.id,
		TopicID:    c.topicID,
		State:      c.state,
		Cursor:     c.cursor,
		Total:      len(c.questions),
		Answered:   len(c.answers),
		FullScreen: c.fullScreen,
		Failure:    c.failure,
	}
	if c.result != nil {
		result := *c.result
		snap.Result = &result
	}
	if c.state != domain.StateInProgress && c.state != domain.StateViolationPending {
		return snap
	}

	q := c.questions[c.cursor]
	snap.Question = &q
	for _, opt := range c.byQuestion[q.ID] {
		snap.Options = append(snap.Options, domain.OptionView{ID: opt.ID, Text: opt.Text})
	}
	snap.Selected = c.answers[q.ID]

	if c.state == domain.StateInProgress {
		_, answered := c.answers[q.ID]
		last := c.cursor == len(c.questions)-1
		snap.CanRetreat = c.cursor > 0
		snap.CanAdvance = answered && !last
		snap.CanSubmit = answered && last
	}
	return snap
}

type noScreen struct{}

func (noScreen) RequestFullScreen(context.Context) error { return nil }
func (noScreen) ExitFullScreen(context.Context) error    { return nil }
