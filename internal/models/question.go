package models

import "database/sql/driver"

// QuestionKind distinguishes auto-graded from manually graded questions.
type QuestionKind string

const (
	QuestionKindObjective  QuestionKind = "objective"
	QuestionKindSubjective QuestionKind = "subjective"
)

// Difficulty tags a bank question for sampling.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a single choice of an objective question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Options is persisted as JSONB.
type Options []Option

// Value marshals options to JSON for persistence.
func (o Options) Value() (driver.Value, error) {
	if o == nil {
		o = Options{}
	}
	return jsonValue(o, "question options")
}

// Scan unmarshals JSON payloads into options.
func (o *Options) Scan(value interface{}) error {
	var out Options
	if _, err := scanJSON(value, &out, "question options"); err != nil {
		return err
	}
	*o = out
	return nil
}

// Has reports whether key names one of the options.
func (o Options) Has(key string) bool {
	for _, opt := range o {
		if opt.Key == key {
			return true
		}
	}
	return false
}

// Question is a read-only row from the content collaborator's question bank.
type Question struct {
	ID            string       `db:"id" json:"id"`
	Kind          QuestionKind `db:"kind" json:"kind"`
	Text          string       `db:"text" json:"text"`
	Options       Options      `db:"options" json:"options,omitempty"`
	CorrectOption *string      `db:"correct_option" json:"-"`
	Marks         float64      `db:"marks" json:"marks"`
	Unit          string       `db:"unit" json:"unit"`
	Difficulty    Difficulty   `db:"difficulty" json:"difficulty"`
	MaxWords      *int         `db:"max_words" json:"max_words,omitempty"`
	Rubric        *string      `db:"rubric" json:"-"`
}

// QuestionFilter narrows bank sampling.
type QuestionFilter struct {
	Kind       QuestionKind
	Units      []string
	Difficulty *Difficulty
}
