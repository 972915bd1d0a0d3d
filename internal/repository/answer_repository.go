package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// AnswerRepository stores one answer row per (exam instance, question number).
type AnswerRepository struct {
	db *sqlx.DB
}

// NewAnswerRepository constructs the repository.
func NewAnswerRepository(db *sqlx.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Upsert writes an answer; a later write for the same key overwrites the earlier one.
func (r *AnswerRepository) Upsert(ctx context.Context, q sqlx.ExtContext, answer *models.StudentAnswer) error {
	if answer.ID == "" {
		answer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	answer.CreatedAt = now
	answer.UpdatedAt = now

	const query = `INSERT INTO student_answers (id, exam_instance_id, question_number, selected_option, answer_sheet_key, marks_awarded, marks_possible, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
ON CONFLICT (exam_instance_id, question_number) DO UPDATE
SET selected_option = EXCLUDED.selected_option, answer_sheet_key = EXCLUDED.answer_sheet_key, updated_at = EXCLUDED.updated_at`
	if _, err := pick(r.db, q).ExecContext(ctx, query,
		answer.ID, answer.ExamInstanceID, answer.QuestionNumber, answer.SelectedOption, answer.AnswerSheetKey,
		answer.MarksPossible, now); err != nil {
		return fmt.Errorf("upsert student answer: %w", err)
	}
	return nil
}

// ListByInstance returns an attempt's answers ordered by question number.
func (r *AnswerRepository) ListByInstance(ctx context.Context, q sqlx.ExtContext, instanceID string) ([]models.StudentAnswer, error) {
	const query = `SELECT id, exam_instance_id, question_number, selected_option, answer_sheet_key, marks_awarded, marks_possible, created_at, updated_at
FROM student_answers WHERE exam_instance_id = $1 ORDER BY question_number`
	var answers []models.StudentAnswer
	if err := sqlx.SelectContext(ctx, pick(r.db, q), &answers, query, instanceID); err != nil {
		return nil, fmt.Errorf("list student answers: %w", err)
	}
	return answers, nil
}

// SaveMarks persists per-answer scoring results.
func (r *AnswerRepository) SaveMarks(ctx context.Context, q sqlx.ExtContext, instanceID string, marks []models.AnswerMark) error {
	const query = `UPDATE student_answers SET marks_awarded = $1, marks_possible = $2 WHERE exam_instance_id = $3 AND question_number = $4`
	ext := pick(r.db, q)
	for _, m := range marks {
		if _, err := ext.ExecContext(ctx, query, m.MarksAwarded, m.MarksPossible, instanceID, m.QuestionNumber); err != nil {
			return fmt.Errorf("save answer marks: %w", err)
		}
	}
	return nil
}
