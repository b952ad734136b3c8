package domain

// State is the lifecycle phase of a quiz session.
type State string

const (
	StateLoading          State = "loading"
	StateNotStarted       State = "not_started"
	StateInProgress       State = "in_progress"
	StateViolationPending State = "violation_pending"
	StateResults          State = "results"
	// StateEmpty is terminal: the topic had no questions or could not be loaded.
	StateEmpty State = "empty"
	// StateCancelled is terminal: the taker exited after a proctoring violation.
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateResults, StateEmpty, StateCancelled:
		return true
	}
	return false
}
