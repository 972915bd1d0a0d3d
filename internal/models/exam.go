package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SectionRule describes how many bank questions of one kind to sample.
// DifficultyMix, when present, splits Count across difficulty levels.
type SectionRule struct {
	Kind          QuestionKind       `json:"kind"`
	Count         int                `json:"count"`
	Marks         float64            `json:"marks,omitempty"`
	Units         []string           `json:"units,omitempty"`
	DifficultyMix map[Difficulty]int `json:"difficulty_mix,omitempty"`
}

// SectionRules is persisted as JSONB.
type SectionRules []SectionRule

// Value marshals rules to JSON for persistence.
func (r SectionRules) Value() (driver.Value, error) {
	if r == nil {
		r = SectionRules{}
	}
	return jsonValue(r, "section rules")
}

// Scan unmarshals JSON payloads into rules.
func (r *SectionRules) Scan(value interface{}) error {
	var out SectionRules
	if _, err := scanJSON(value, &out, "section rules"); err != nil {
		return err
	}
	*r = out
	return nil
}

// ExamTemplate is immutable once published; a change is a new version row.
type ExamTemplate struct {
	ID              string       `db:"id" json:"id"`
	Version         int          `db:"version" json:"version"`
	Title           string       `db:"title" json:"title"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
	SLAHours        int          `db:"sla_hours" json:"sla_hours"`
	TotalMarks      float64      `db:"total_marks" json:"total_marks"`
	Rules           SectionRules `db:"rules" json:"rules"`
	Published       bool         `db:"published" json:"published"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// ExamState enumerates the server-side exam lifecycle.
type ExamState string

const (
	ExamStateCreated            ExamState = "created"
	ExamStateInProgress         ExamState = "in_progress"
	ExamStateSubmittedMCQ       ExamState = "submitted_mcq"
	ExamStateEvaluated          ExamState = "evaluated"
	ExamStateNoEvaluationNeeded ExamState = "no_evaluation_needed"
)

var examTransitions = map[ExamState][]ExamState{
	ExamStateCreated:      {ExamStateInProgress},
	ExamStateInProgress:   {ExamStateSubmittedMCQ},
	ExamStateSubmittedMCQ: {ExamStateEvaluated, ExamStateNoEvaluationNeeded},
}

// CanTransition reports whether next directly follows s in the lifecycle.
func (s ExamState) CanTransition(next ExamState) bool {
	for _, allowed := range examTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s ExamState) IsTerminal() bool {
	return s == ExamStateEvaluated || s == ExamStateNoEvaluationNeeded
}

// SubmitReason records who finalised the attempt.
type SubmitReason string

const (
	SubmitReasonManual      SubmitReason = "manual"
	SubmitReasonAutoTimeout SubmitReason = "auto_timeout"
)

// ExamInstance is one student's attempt with its frozen snapshot.
type ExamInstance struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	TemplateID      string        `db:"template_id" json:"template_id"`
	TemplateVersion int           `db:"template_version" json:"template_version"`
	AttemptKey      string        `db:"attempt_key" json:"attempt_key"`
	Snapshot        Snapshot      `db:"snapshot" json:"snapshot"`
	State           ExamState     `db:"state" json:"state"`
	StartedAt       *time.Time    `db:"started_at" json:"started_at,omitempty"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	SubmittedAt     *time.Time    `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmitReason    *SubmitReason `db:"submit_reason" json:"submit_reason,omitempty"`
	AutomatedScore  *float64      `db:"automated_score" json:"automated_score,omitempty"`
	ManualScore     *float64      `db:"manual_score" json:"manual_score,omitempty"`
	TotalMarks      float64       `db:"total_marks" json:"total_marks"`
	SLAHours        int           `db:"sla_hours" json:"sla_hours"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Deadline is the server-authoritative end of the time budget.
func (e *ExamInstance) Deadline() (time.Time, error) {
	if e.StartedAt == nil {
		return time.Time{}, fmt.Errorf("exam %s has not started", e.ID)
	}
	return e.StartedAt.Add(time.Duration(e.DurationMinutes) * time.Minute), nil
}

// AcceptsAnswersAt reports whether answers may still be written at now.
func (e *ExamInstance) AcceptsAnswersAt(now time.Time, grace time.Duration) bool {
	if e.State != ExamStateInProgress {
		return false
	}
	deadline, err := e.Deadline()
	if err != nil {
		return false
	}
	return !now.After(deadline.Add(grace))
}

// EvaluationDisplayStatus is the only view of grading students ever see.
type EvaluationDisplayStatus string

const (
	EvaluationDisplayNotRequired EvaluationDisplayStatus = "not_required"
	EvaluationDisplayPending     EvaluationDisplayStatus = "pending"
	EvaluationDisplayEvaluated   EvaluationDisplayStatus = "evaluated"
)
