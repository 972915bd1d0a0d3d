package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

const evaluationColumns = `id, exam_instance_id, sla_hours, deadline, assigned_teacher_id, status, breached_at, assigned_at,
assignment_failed_at, completed_at, manual_score, created_at, updated_at`

// EvaluationRepository persists evaluations and their question marks. Status
// writes are conditional updates so the breach scan, assignment and completion
// never overwrite one another.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create inserts a pending evaluation. It reports false when the exam instance
// already has one.
func (r *EvaluationRepository) Create(ctx context.Context, q sqlx.ExtContext, eval *models.Evaluation) (bool, error) {
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	eval.Status = models.EvaluationStatusPending
	eval.CreatedAt = now
	eval.UpdatedAt = now

	const query = `INSERT INTO evaluations (id, exam_instance_id, sla_hours, deadline, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (exam_instance_id) DO NOTHING RETURNING id`
	var id string
	err := sqlx.GetContext(ctx, pick(r.db, q), &id, query,
		eval.ID, eval.ExamInstanceID, eval.SLAHours, eval.Deadline, eval.Status, now)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create evaluation: %w", err)
	}
	return true, nil
}

// GetByID loads an evaluation.
func (r *EvaluationRepository) GetByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`
	var eval models.Evaluation
	if err := sqlx.GetContext(ctx, pick(r.db, q), &eval, query, id); err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return &eval, nil
}

// GetByExamInstance loads the evaluation of an exam attempt.
func (r *EvaluationRepository) GetByExamInstance(ctx context.Context, instanceID string) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE exam_instance_id = $1`
	var eval models.Evaluation
	if err := r.db.GetContext(ctx, &eval, query, instanceID); err != nil {
		return nil, fmt.Errorf("get evaluation by exam instance: %w", err)
	}
	return &eval, nil
}

// Lock loads an evaluation FOR UPDATE.
func (r *EvaluationRepository) Lock(ctx context.Context, q sqlx.ExtContext, id string) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1 FOR UPDATE`
	var eval models.Evaluation
	if err := sqlx.GetContext(ctx, pick(r.db, q), &eval, query, id); err != nil {
		return nil, fmt.Errorf("lock evaluation: %w", err)
	}
	return &eval, nil
}

// Assign sets the teacher when nobody holds the evaluation yet. A breached
// evaluation keeps its breached status. It reports false when the guard failed.
func (r *EvaluationRepository) Assign(ctx context.Context, id, teacherID string, at time.Time) (bool, error) {
	const query = `UPDATE evaluations
SET assigned_teacher_id = $1, assigned_at = $2, updated_at = $2,
    status = CASE WHEN status = 'breached' THEN 'breached' ELSE 'assigned' END
WHERE id = $3 AND assigned_teacher_id IS NULL AND status IN ('pending', 'breached')`
	res, err := r.db.ExecContext(ctx, query, teacherID, at, id)
	if err != nil {
		return false, fmt.Errorf("assign evaluation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign evaluation: %w", err)
	}
	return affected == 1, nil
}

// MarkAssignmentFailed stamps the first failed assignment attempt. It reports
// true only for the call that set the marker.
func (r *EvaluationRepository) MarkAssignmentFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE evaluations SET assignment_failed_at = $1, updated_at = $1
WHERE id = $2 AND assignment_failed_at IS NULL AND assigned_teacher_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark assignment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark assignment failed: %w", err)
	}
	return affected == 1, nil
}

// MarkInProgress records that grading began. Only assigned evaluations move.
func (r *EvaluationRepository) MarkInProgress(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE evaluations SET status = 'in_progress', updated_at = $1 WHERE id = $2 AND status = 'assigned'`
	if _, err := pick(r.db, q).ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark evaluation in progress: %w", err)
	}
	return nil
}

// Complete finishes a non-completed evaluation. breached_at is left untouched.
func (r *EvaluationRepository) Complete(ctx context.Context, q sqlx.ExtContext, id string, manualScore float64, at time.Time) (bool, error) {
	const query = `UPDATE evaluations SET status = 'completed', manual_score = $1, completed_at = $2, updated_at = $2
WHERE id = $3 AND status <> 'completed'`
	res, err := pick(r.db, q).ExecContext(ctx, query, manualScore, at, id)
	if err != nil {
		return false, fmt.Errorf("complete evaluation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete evaluation: %w", err)
	}
	return affected == 1, nil
}

// MarkBreached flags every non-terminal evaluation past its deadline in one
// conditional statement and returns the rows it changed.
func (r *EvaluationRepository) MarkBreached(ctx context.Context, now time.Time, limit int) ([]models.BreachRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `UPDATE evaluations SET status = 'breached', breached_at = $1, updated_at = $1
WHERE id IN (
    SELECT id FROM evaluations
    WHERE status IN ('pending', 'assigned', 'in_progress') AND deadline < $1
    ORDER BY deadline ASC LIMIT $2
    FOR UPDATE SKIP LOCKED
) AND status IN ('pending', 'assigned', 'in_progress')
RETURNING id, deadline, breached_at`
	var records []models.BreachRecord
	if err := r.db.SelectContext(ctx, &records, query, now, limit); err != nil {
		return nil, fmt.Errorf("mark evaluations breached: %w", err)
	}
	return records, nil
}

// ListUnassigned returns evaluations still waiting for a teacher, oldest deadline first.
func (r *EvaluationRepository) ListUnassigned(ctx context.Context, limit int) ([]models.Evaluation, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + evaluationColumns + ` FROM evaluations
WHERE assigned_teacher_id IS NULL AND status IN ('pending', 'breached')
ORDER BY deadline ASC LIMIT $1`
	var evals []models.Evaluation
	if err := r.db.SelectContext(ctx, &evals, query, limit); err != nil {
		return nil, fmt.Errorf("list unassigned evaluations: %w", err)
	}
	return evals, nil
}

// ListBreaches returns breach records at or after since.
func (r *EvaluationRepository) ListBreaches(ctx context.Context, since time.Time, limit, offset int) ([]models.BreachRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, deadline, breached_at FROM evaluations
WHERE breached_at IS NOT NULL AND breached_at >= $1
ORDER BY breached_at ASC, id ASC LIMIT $2 OFFSET $3`
	var records []models.BreachRecord
	if err := r.db.SelectContext(ctx, &records, query, since, limit, offset); err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	return records, nil
}

// ListForReport returns evaluations created within the filter range.
func (r *EvaluationRepository) ListForReport(ctx context.Context, filter models.SLAReportFilter) ([]models.SLAReportRow, error) {
	const query = `SELECT id, exam_instance_id, sla_hours, status, assigned_teacher_id, deadline, completed_at, breached_at, created_at
FROM evaluations WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`
	var rows []models.SLAReportRow
	if err := r.db.SelectContext(ctx, &rows, query, filter.From, filter.To); err != nil {
		return nil, fmt.Errorf("list sla report rows: %w", err)
	}
	return rows, nil
}

// UpsertQuestionMark writes a teacher's mark; re-marking a question overwrites it.
func (r *EvaluationRepository) UpsertQuestionMark(ctx context.Context, q sqlx.ExtContext, mark *models.QuestionMark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	mark.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO question_marks (id, evaluation_id, question_number, marks_awarded, marks_possible, teacher_id, comment, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (evaluation_id, question_number) DO UPDATE
SET marks_awarded = EXCLUDED.marks_awarded, teacher_id = EXCLUDED.teacher_id, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at`
	if _, err := pick(r.db, q).ExecContext(ctx, query,
		mark.ID, mark.EvaluationID, mark.QuestionNumber, mark.MarksAwarded, mark.MarksPossible, mark.TeacherID, mark.Comment, mark.UpdatedAt); err != nil {
		return fmt.Errorf("upsert question mark: %w", err)
	}
	return nil
}

// ListQuestionMarks returns the marks recorded for an evaluation.
func (r *EvaluationRepository) ListQuestionMarks(ctx context.Context, q sqlx.ExtContext, evaluationID string) ([]models.QuestionMark, error) {
	const query = `SELECT id, evaluation_id, question_number, marks_awarded, marks_possible, teacher_id, comment, updated_at
FROM question_marks WHERE evaluation_id = $1 ORDER BY question_number`
	var marks []models.QuestionMark
	if err := sqlx.SelectContext(ctx, pick(r.db, q), &marks, query, evaluationID); err != nil {
		return nil, fmt.Errorf("list question marks: %w", err)
	}
	return marks, nil
}
