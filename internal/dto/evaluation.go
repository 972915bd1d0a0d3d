package dto

import (
	"time"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// QuestionMarkInput is a teacher's grade for one subjective question.
type QuestionMarkInput struct {
	QuestionNumber int     `json:"question_number" validate:"required,min=1"`
	MarksAwarded   float64 `json:"marks_awarded" validate:"gte=0"`
	Comment        *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// SubmitMarksRequest carries one or more question marks.
type SubmitMarksRequest struct {
	Marks []QuestionMarkInput `json:"marks" validate:"required,min=1,dive"`
}

// AssignEvaluationResponse reports the chosen teacher.
type AssignEvaluationResponse struct {
	EvaluationID string `json:"evaluation_id"`
	TeacherID    string `json:"teacher_id"`
}

// EvaluationQuestionView is a subjective question as shown to the grader.
type EvaluationQuestionView struct {
	Number         int                  `json:"number"`
	Text           string               `json:"text"`
	Marks          float64              `json:"marks"`
	MaxWords       int                  `json:"max_words,omitempty"`
	Rubric         string               `json:"rubric,omitempty"`
	AnswerSheetURL string               `json:"answer_sheet_url,omitempty"`
	URLExpiresAt   *time.Time           `json:"url_expires_at,omitempty"`
	Mark           *models.QuestionMark `json:"mark,omitempty"`
}

// EvaluationDetailResponse is the grader view of an evaluation.
type EvaluationDetailResponse struct {
	Evaluation     models.Evaluation        `json:"evaluation"`
	WasBreached    bool                     `json:"was_breached"`
	AutomatedScore *float64                 `json:"automated_score,omitempty"`
	TotalMarks     float64                  `json:"total_marks"`
	Questions      []EvaluationQuestionView `json:"questions"`
}

// SLAReportQuery scopes the SLA compliance export. Dates are inclusive YYYY-MM-DD.
type SLAReportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
	From   string `form:"from" validate:"required,datetime=2006-01-02"`
	To     string `form:"to" validate:"required,datetime=2006-01-02"`
}
