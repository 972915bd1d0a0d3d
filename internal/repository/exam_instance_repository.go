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

const examInstanceColumns = `id, student_id, template_id, template_version, attempt_key, snapshot, state, started_at, duration_minutes,
submitted_at, submit_reason, automated_score, manual_score, total_marks, sla_hours, created_at, updated_at`

// ExamInstanceRepository persists exam attempts. Every state write is
// conditional on the expected prior state.
type ExamInstanceRepository struct {
	db *sqlx.DB
}

// NewExamInstanceRepository constructs the repository.
func NewExamInstanceRepository(db *sqlx.DB) *ExamInstanceRepository {
	return &ExamInstanceRepository{db: db}
}

// Create inserts a new attempt in the created state. It reports false when an
// attempt with the same (student, attempt key) already exists.
func (r *ExamInstanceRepository) Create(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (bool, error) {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = inst.CreatedAt
	inst.State = models.ExamStateCreated

	const query = `INSERT INTO exam_instances (id, student_id, template_id, template_version, attempt_key, snapshot, state,
duration_minutes, total_marks, sla_hours, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (student_id, attempt_key) DO NOTHING RETURNING id`
	var id string
	err := sqlx.GetContext(ctx, pick(r.db, q), &id, query,
		inst.ID, inst.StudentID, inst.TemplateID, inst.TemplateVersion, inst.AttemptKey, inst.Snapshot, inst.State,
		inst.DurationMinutes, inst.TotalMarks, inst.SLAHours, inst.CreatedAt, inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create exam instance: %w", err)
	}
	return true, nil
}

// GetByID loads an attempt.
func (r *ExamInstanceRepository) GetByID(ctx context.Context, id string) (*models.ExamInstance, error) {
	query := `SELECT ` + examInstanceColumns + ` FROM exam_instances WHERE id = $1`
	var inst models.ExamInstance
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		return nil, fmt.Errorf("get exam instance: %w", err)
	}
	return &inst, nil
}

// GetByAttemptKey loads the attempt created for a student's start request.
func (r *ExamInstanceRepository) GetByAttemptKey(ctx context.Context, q sqlx.ExtContext, studentID, attemptKey string) (*models.ExamInstance, error) {
	query := `SELECT ` + examInstanceColumns + ` FROM exam_instances WHERE student_id = $1 AND attempt_key = $2`
	var inst models.ExamInstance
	if err := sqlx.GetContext(ctx, pick(r.db, q), &inst, query, studentID, attemptKey); err != nil {
		return nil, fmt.Errorf("get exam instance by attempt key: %w", err)
	}
	return &inst, nil
}

// Lock loads an attempt holding a row lock for the rest of the transaction.
// Shared locks let concurrent answer writes proceed while blocking submission.
func (r *ExamInstanceRepository) Lock(ctx context.Context, q sqlx.ExtContext, id string, shared bool) (*models.ExamInstance, error) {
	mode := "FOR UPDATE"
	if shared {
		mode = "FOR SHARE"
	}
	query := `SELECT ` + examInstanceColumns + ` FROM exam_instances WHERE id = $1 ` + mode
	var inst models.ExamInstance
	if err := sqlx.GetContext(ctx, pick(r.db, q), &inst, query, id); err != nil {
		return nil, fmt.Errorf("lock exam instance: %w", err)
	}
	return &inst, nil
}

// TryLock is Lock FOR UPDATE SKIP LOCKED; it returns sql.ErrNoRows when the
// row is held by another transaction.
func (r *ExamInstanceRepository) TryLock(ctx context.Context, q sqlx.ExtContext, id string) (*models.ExamInstance, error) {
	query := `SELECT ` + examInstanceColumns + ` FROM exam_instances WHERE id = $1 FOR UPDATE SKIP LOCKED`
	var inst models.ExamInstance
	if err := sqlx.GetContext(ctx, pick(r.db, q), &inst, query, id); err != nil {
		return nil, fmt.Errorf("try lock exam instance: %w", err)
	}
	return &inst, nil
}

// MarkStarted moves created to in_progress and starts the time budget.
func (r *ExamInstanceRepository) MarkStarted(ctx context.Context, q sqlx.ExtContext, id string, startedAt time.Time) (bool, error) {
	const query = `UPDATE exam_instances SET state = $1, started_at = $2, updated_at = $2 WHERE id = $3 AND state = $4`
	return r.execConditional(ctx, q, "mark exam started", query,
		models.ExamStateInProgress, startedAt, id, models.ExamStateCreated)
}

// MarkSubmitted moves in_progress to submitted_mcq recording the automated score.
func (r *ExamInstanceRepository) MarkSubmitted(ctx context.Context, q sqlx.ExtContext, id string, submittedAt time.Time, reason models.SubmitReason, automatedScore float64) (bool, error) {
	const query = `UPDATE exam_instances SET state = $1, submitted_at = $2, submit_reason = $3, automated_score = $4, updated_at = $2
WHERE id = $5 AND state = $6`
	return r.execConditional(ctx, q, "mark exam submitted", query,
		models.ExamStateSubmittedMCQ, submittedAt, reason, automatedScore, id, models.ExamStateInProgress)
}

// Finalize moves submitted_mcq to a terminal state, recording the manual score when graded.
func (r *ExamInstanceRepository) Finalize(ctx context.Context, q sqlx.ExtContext, id string, to models.ExamState, manualScore *float64) (bool, error) {
	if !models.ExamStateSubmittedMCQ.CanTransition(to) {
		return false, fmt.Errorf("finalize exam instance: invalid target state %s", to)
	}
	const query = `UPDATE exam_instances SET state = $1, manual_score = $2, updated_at = $3 WHERE id = $4 AND state = $5`
	return r.execConditional(ctx, q, "finalize exam", query,
		to, manualScore, time.Now().UTC(), id, models.ExamStateSubmittedMCQ)
}

// UpdateAutomatedScore rewrites the automated score of a submitted attempt.
func (r *ExamInstanceRepository) UpdateAutomatedScore(ctx context.Context, q sqlx.ExtContext, id string, score float64) error {
	const query = `UPDATE exam_instances SET automated_score = $1, updated_at = $2 WHERE id = $3 AND submitted_at IS NOT NULL`
	if _, err := pick(r.db, q).ExecContext(ctx, query, score, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update automated score: %w", err)
	}
	return nil
}

// ListExpiredIDs returns in-progress attempts whose time budget ended before cutoff.
func (r *ExamInstanceRepository) ListExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id FROM exam_instances
WHERE state = $1 AND started_at + make_interval(mins => duration_minutes) < $2
ORDER BY started_at ASC LIMIT $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.ExamStateInProgress, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list expired exam instances: %w", err)
	}
	return ids, nil
}

func (r *ExamInstanceRepository) execConditional(ctx context.Context, q sqlx.ExtContext, op, query string, args ...interface{}) (bool, error) {
	res, err := pick(r.db, q).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected == 1, nil
}
