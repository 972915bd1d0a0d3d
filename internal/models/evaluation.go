package models

import "time"

// EvaluationStatus tracks manual grading progress.
type EvaluationStatus string

const (
	EvaluationStatusPending    EvaluationStatus = "pending"
	EvaluationStatusAssigned   EvaluationStatus = "assigned"
	EvaluationStatusInProgress EvaluationStatus = "in_progress"
	EvaluationStatusCompleted  EvaluationStatus = "completed"
	EvaluationStatusBreached   EvaluationStatus = "breached"
)

// ValidSLAHours are the contractual turnaround classes in working hours.
var ValidSLAHours = []int{24, 48}

// IsTerminal reports whether the evaluation can no longer change.
func (s EvaluationStatus) IsTerminal() bool {
	return s == EvaluationStatusCompleted
}

// Evaluation is one-to-one with an exam instance holding subjective questions.
// BreachedAt is kept after completion as the historical breach marker.
type Evaluation struct {
	ID                 string           `db:"id" json:"id"`
	ExamInstanceID     string           `db:"exam_instance_id" json:"exam_instance_id"`
	SLAHours           int              `db:"sla_hours" json:"sla_hours"`
	Deadline           time.Time        `db:"deadline" json:"deadline"`
	AssignedTeacherID  *string          `db:"assigned_teacher_id" json:"assigned_teacher_id,omitempty"`
	Status             EvaluationStatus `db:"status" json:"status"`
	BreachedAt         *time.Time       `db:"breached_at" json:"breached_at,omitempty"`
	AssignedAt         *time.Time       `db:"assigned_at" json:"assigned_at,omitempty"`
	AssignmentFailedAt *time.Time       `db:"assignment_failed_at" json:"assignment_failed_at,omitempty"`
	CompletedAt        *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	ManualScore        *float64         `db:"manual_score" json:"manual_score,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// WasBreached reports whether the deadline was ever missed.
func (e *Evaluation) WasBreached() bool {
	return e.BreachedAt != nil
}

// QuestionMark is a teacher's grade for one subjective question.
type QuestionMark struct {
	ID             string    `db:"id" json:"id"`
	EvaluationID   string    `db:"evaluation_id" json:"evaluation_id"`
	QuestionNumber int       `db:"question_number" json:"question_number"`
	MarksAwarded   float64   `db:"marks_awarded" json:"marks_awarded"`
	MarksPossible  float64   `db:"marks_possible" json:"marks_possible"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	Comment        *string   `db:"comment" json:"comment,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// BreachRecord is the payload of the breach report feed.
type BreachRecord struct {
	EvaluationID string    `db:"id" json:"evaluationId"`
	Deadline     time.Time `db:"deadline" json:"deadline"`
	BreachedAt   time.Time `db:"breached_at" json:"breachedAt"`
}

// SLAReportFilter scopes the SLA compliance export.
type SLAReportFilter struct {
	From time.Time
	To   time.Time
}

// SLAReportRow is one evaluation line of the SLA compliance export.
type SLAReportRow struct {
	EvaluationID      string           `db:"id"`
	ExamInstanceID    string           `db:"exam_instance_id"`
	SLAHours          int              `db:"sla_hours"`
	Status            EvaluationStatus `db:"status"`
	AssignedTeacherID *string          `db:"assigned_teacher_id"`
	Deadline          time.Time        `db:"deadline"`
	CompletedAt       *time.Time       `db:"completed_at"`
	BreachedAt        *time.Time       `db:"breached_at"`
	CreatedAt         time.Time        `db:"created_at"`
}
