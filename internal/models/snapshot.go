package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ObjectivePayload is the fixed shape of an auto-graded question.
type ObjectivePayload struct {
	Options       Options `json:"options"`
	CorrectOption string  `json:"correct_option,omitempty"`
}

// SubjectivePayload is the fixed shape of a manually graded question.
type SubjectivePayload struct {
	MaxWords int    `json:"max_words,omitempty"`
	Rubric   string `json:"rubric,omitempty"`
}

// SnapshotQuestion is a frozen copy of one bank question. Exactly one of
// Objective or Subjective is set and it matches Kind.
type SnapshotQuestion struct {
	Number     int                `json:"number"`
	QuestionID string             `json:"question_id"`
	Kind       QuestionKind       `json:"kind"`
	Text       string             `json:"text"`
	Marks      float64            `json:"marks"`
	Unit       string             `json:"unit,omitempty"`
	Difficulty Difficulty         `json:"difficulty,omitempty"`
	Objective  *ObjectivePayload  `json:"objective,omitempty"`
	Subjective *SubjectivePayload `json:"subjective,omitempty"`
}

// Validate checks the tagged variant and option payload of a single question.
func (q SnapshotQuestion) Validate() error {
	if q.Number <= 0 {
		return fmt.Errorf("question number must be positive")
	}
	if q.Marks <= 0 {
		return fmt.Errorf("question %d: marks must be positive", q.Number)
	}
	switch q.Kind {
	case QuestionKindObjective:
		if q.Objective == nil || q.Subjective != nil {
			return fmt.Errorf("question %d: objective question needs exactly an objective payload", q.Number)
		}
		if len(q.Objective.Options) < 2 {
			return fmt.Errorf("question %d: objective question needs at least two options", q.Number)
		}
		if !q.Objective.Options.Has(q.Objective.CorrectOption) {
			return fmt.Errorf("question %d: correct option %q is not an option", q.Number, q.Objective.CorrectOption)
		}
	case QuestionKindSubjective:
		if q.Subjective == nil || q.Objective != nil {
			return fmt.Errorf("question %d: subjective question needs exactly a subjective payload", q.Number)
		}
	default:
		return fmt.Errorf("question %d: unknown kind %q", q.Number, q.Kind)
	}
	return nil
}

// Snapshot is the ordered, self-contained question list of an exam instance.
type Snapshot []SnapshotQuestion

// Value marshals the snapshot to JSON for persistence.
func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		s = Snapshot{}
	}
	return jsonValue(s, "exam snapshot")
}

// Scan unmarshals JSON payloads into the snapshot.
func (s *Snapshot) Scan(value interface{}) error {
	var out Snapshot
	if _, err := scanJSON(value, &out, "exam snapshot"); err != nil {
		return err
	}
	*s = out
	return nil
}

// Validate checks every question and that numbers run 1..n in order.
func (s Snapshot) Validate() error {
	if len(s) == 0 {
		return errors.New("snapshot has no questions")
	}
	for i, q := range s {
		if q.Number != i+1 {
			return fmt.Errorf("question at position %d numbered %d", i+1, q.Number)
		}
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Question returns the question with the given number.
func (s Snapshot) Question(number int) (SnapshotQuestion, bool) {
	if number <= 0 || number > len(s) {
		return SnapshotQuestion{}, false
	}
	q := s[number-1]
	return q, q.Number == number
}

// HasSubjective reports whether manual grading is required.
func (s Snapshot) HasSubjective() bool {
	for _, q := range s {
		if q.Kind == QuestionKindSubjective {
			return true
		}
	}
	return false
}

// SubjectiveNumbers lists the question numbers that need teacher marks.
func (s Snapshot) SubjectiveNumbers() []int {
	var numbers []int
	for _, q := range s {
		if q.Kind == QuestionKindSubjective {
			numbers = append(numbers, q.Number)
		}
	}
	return numbers
}

// TotalMarks sums all question marks, optionally restricted to one kind.
func (s Snapshot) TotalMarks(kind ...QuestionKind) float64 {
	var total float64
	for _, q := range s {
		if len(kind) > 0 && q.Kind != kind[0] {
			continue
		}
		total += q.Marks
	}
	return total
}

// StudentView returns a deep copy with answer keys and rubrics removed.
func (s Snapshot) StudentView() Snapshot {
	out := make(Snapshot, len(s))
	for i, q := range s {
		cp := q
		if q.Objective != nil {
			opts := make(Options, len(q.Objective.Options))
			copy(opts, q.Objective.Options)
			cp.Objective = &ObjectivePayload{Options: opts}
		}
		if q.Subjective != nil {
			cp.Subjective = &SubjectivePayload{MaxWords: q.Subjective.MaxWords}
		}
		out[i] = cp
	}
	return out
}
