package dto

import (
	"time"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// StartExamRequest starts (or resumes, for a repeated attempt key) an exam.
type StartExamRequest struct {
	StudentID     string   `json:"-" validate:"required"`
	TemplateID    string   `json:"template_id" validate:"required"`
	SelectedUnits []string `json:"selected_units" validate:"omitempty,dive,required"`
	AttemptKey    string   `json:"attempt_key" validate:"omitempty,max=128"`
}

// AnswerView is a saved answer as shown back to the student.
type AnswerView struct {
	QuestionNumber int       `json:"question_number"`
	SelectedOption *string   `json:"selected_option,omitempty"`
	AnswerSheetKey *string   `json:"answer_sheet_key,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExamSessionResponse is the student view of an attempt. Questions never carry answer keys.
type ExamSessionResponse struct {
	ID              string           `json:"id"`
	TemplateID      string           `json:"template_id"`
	TemplateVersion int              `json:"template_version"`
	State           models.ExamState `json:"state"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	Deadline        *time.Time       `json:"deadline,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	TotalMarks      float64          `json:"total_marks"`
	Questions       models.Snapshot  `json:"questions"`
	Answers         []AnswerView     `json:"answers,omitempty"`
	Resumed         bool             `json:"resumed"`
}

// SubmitAnswersRequest finalises an attempt with the last answers held by the client.
type SubmitAnswersRequest struct {
	Answers []models.AnswerInput `json:"answers" validate:"dive"`
}

// SubmitResult reports the automated score of a submitted attempt.
type SubmitResult struct {
	ExamInstanceID   string                         `json:"exam_instance_id"`
	State            models.ExamState               `json:"state"`
	SubmittedAt      time.Time                      `json:"submitted_at"`
	AutomatedScore   float64                        `json:"automated_score"`
	TotalMCQMarks    float64                        `json:"total_mcq_marks"`
	TotalMarks       float64                        `json:"total_marks"`
	EvaluationStatus models.EvaluationDisplayStatus `json:"evaluation_status"`
}

// ExamStatusResponse is the polling view of an attempt.
type ExamStatusResponse struct {
	ID               string                         `json:"id"`
	State            models.ExamState               `json:"state"`
	StartedAt        *time.Time                     `json:"started_at,omitempty"`
	Deadline         *time.Time                     `json:"deadline,omitempty"`
	RemainingSeconds int64                          `json:"remaining_seconds"`
	SubmittedAt      *time.Time                     `json:"submitted_at,omitempty"`
	AutomatedScore   *float64                       `json:"automated_score,omitempty"`
	ManualScore      *float64                       `json:"manual_score,omitempty"`
	TotalMarks       float64                        `json:"total_marks"`
	EvaluationStatus models.EvaluationDisplayStatus `json:"evaluation_status,omitempty"`
}

// RecordAnswerRequest autosaves a single answer.
type RecordAnswerRequest struct {
	SelectedOption *string `json:"selected_option,omitempty"`
	AnswerSheetKey *string `json:"answer_sheet_key,omitempty" validate:"omitempty,max=512"`
}

// RescoreResponse reports a recomputed automated score.
type RescoreResponse struct {
	ExamInstanceID string  `json:"exam_instance_id"`
	PreviousScore  float64 `json:"previous_score"`
	AutomatedScore float64 `json:"automated_score"`
	Changed        bool    `json:"changed"`
}
