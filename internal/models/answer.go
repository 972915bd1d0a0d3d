package models

import "time"

// StudentAnswer is unique per (exam instance, question number).
type StudentAnswer struct {
	ID             string    `db:"id" json:"id"`
	ExamInstanceID string    `db:"exam_instance_id" json:"exam_instance_id"`
	QuestionNumber int       `db:"question_number" json:"question_number"`
	SelectedOption *string   `db:"selected_option" json:"selected_option,omitempty"`
	AnswerSheetKey *string   `db:"answer_sheet_key" json:"answer_sheet_key,omitempty"`
	MarksAwarded   float64   `db:"marks_awarded" json:"marks_awarded"`
	MarksPossible  float64   `db:"marks_possible" json:"marks_possible"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AnswerInput is a single answer as supplied by the student.
type AnswerInput struct {
	QuestionNumber int     `json:"question_number" validate:"required,min=1"`
	SelectedOption *string `json:"selected_option,omitempty"`
	AnswerSheetKey *string `json:"answer_sheet_key,omitempty"`
}

// AnswerMark is the scoring result for one answered question.
type AnswerMark struct {
	QuestionNumber int     `db:"question_number"`
	MarksAwarded   float64 `db:"marks_awarded"`
	MarksPossible  float64 `db:"marks_possible"`
}
