package models

import "time"

// EventType names notifications consumed by the external notifier.
type EventType string

const (
	EventEvaluationBreached         EventType = "evaluation.breached"
	EventEvaluationAssignmentFailed EventType = "evaluation.assignment_failed"
	EventEvaluationAssigned         EventType = "evaluation.assigned"
	EventEvaluationCompleted        EventType = "evaluation.completed"
	EventExamAutoSubmitted          EventType = "exam.auto_submitted"
)

// Event is the envelope published on the notifier channel.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	RequestID  string      `json:"requestId,omitempty"`
	Data       interface{} `json:"data"`
}

// AssignmentFailedData is published when no active teacher can take an evaluation.
type AssignmentFailedData struct {
	EvaluationID string    `json:"evaluationId"`
	Deadline     time.Time `json:"deadline"`
	Reason       string    `json:"reason"`
}

// EvaluationAssignedData is published after a successful assignment.
type EvaluationAssignedData struct {
	EvaluationID string    `json:"evaluationId"`
	TeacherID    string    `json:"teacherId"`
	Deadline     time.Time `json:"deadline"`
}

// EvaluationCompletedData is published when grading finishes.
type EvaluationCompletedData struct {
	EvaluationID   string  `json:"evaluationId"`
	ExamInstanceID string  `json:"examInstanceId"`
	ManualScore    float64 `json:"manualScore"`
	WasBreached    bool    `json:"wasBreached"`
}

// ExamAutoSubmittedData is published when the server finalises an expired attempt.
type ExamAutoSubmittedData struct {
	ExamInstanceID string    `json:"examInstanceId"`
	StudentID      string    `json:"studentId"`
	SubmittedAt    time.Time `json:"submittedAt"`
}
