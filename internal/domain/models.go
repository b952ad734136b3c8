package domain

// Topic groups the questions attempted together as one quiz.
type Topic struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Question is immutable once fetched for a session.
type Question struct {
	ID      string `json:"id"`
	TopicID string `json:"topicId"`
	Text    string `json:"text"`
}

// Option is a possible answer for a question. Exactly one option per question is expected to be correct.
type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// OptionView is an option as shown to the quiz taker, without its correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Attempt is the write-once record persisted when a session is submitted.
type Attempt struct {
	UserID  string `json:"userId"`
	TopicID string `json:"topicId"`
	Score   int    `json:"score"`
}

// Result is the locally computed outcome shown on the results screen.
type Result struct {
	TopicID string `json:"topicId"`
	Score   int    `json:"score"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Passed  bool   `json:"passed"`
}

// Snapshot is a render-ready view of a quiz session.
type Snapshot struct {
	SessionID  string       `json:"sessionId"`
	TopicID    string       `json:"topicId"`
	State      State        `json:"state"`
	Cursor     int          `json:"cursor"`
	Total      int          `json:"total"`
	Answered   int          `json:"answered"`
	Question   *Question    `json:"question,omitempty"`
	Options    []OptionView `json:"options,omitempty"`
	Selected   string       `json:"selected,omitempty"`
	CanRetreat bool         `json:"canRetreat"`
	CanAdvance bool         `json:"canAdvance"`
	CanSubmit  bool         `json:"canSubmit"`
	FullScreen bool         `json:"fullScreen"`
	Result     *Result      `json:"result,omitempty"`
	Failure    string       `json:"failure,omitempty"`
}
