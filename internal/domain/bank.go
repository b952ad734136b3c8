package domain

// QuestionBank is the nested form question content is authored and seeded in.
type QuestionBank struct {
	Topics []BankTopic `json:"topics" yaml:"topics"`
}

type BankTopic struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Questions   []BankQuestion `json:"questions" yaml:"questions"`
}

type BankQuestion struct {
	ID      string       `json:"id" yaml:"id"`
	Text    string       `json:"text" yaml:"text"`
	Options []BankOption `json:"options" yaml:"options"`
}

type BankOption struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Flatten splits the bank into the rows a Question Store serves. Order is preserved.
func (b QuestionBank) Flatten() ([]Topic, []Question, []Option) {
	var (
		topics    []Topic
		questions []Question
		options   []Option
	)
	for _, t := range b.Topics {
		topics = append(topics, Topic{ID: t.ID, Title: t.Title, Description: t.Description})
		for _, q := range t.Questions {
			questions = append(questions, Question{ID: q.ID, TopicID: t.ID, Text: q.Text})
			for _, o := range q.Options {
				options = append(options, Option{ID: o.ID, QuestionID: q.ID, Text: o.Text, Correct: o.Correct})
			}
		}
	}
	return topics, questions, options
}
