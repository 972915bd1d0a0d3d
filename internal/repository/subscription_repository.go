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

const subscriptionColumns = `id, student_id, plan, start_date, end_date, active, created_at`

// SubscriptionRepository reads subscription windows, plan quotas and monthly usage.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListActiveCovering returns active windows that include day.
func (r *SubscriptionRepository) ListActiveCovering(ctx context.Context, q sqlx.ExtContext, studentID string, day time.Time) ([]models.SubscriptionWindow, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_windows
WHERE student_id = $1 AND active = TRUE AND start_date <= $2 AND end_date >= $2`
	var windows []models.SubscriptionWindow
	if err := sqlx.SelectContext(ctx, pick(r.db, q), &windows, query, studentID, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list covering subscriptions: %w", err)
	}
	return windows, nil
}

// GetPlanQuota returns the monthly exam quota of a plan.
func (r *SubscriptionRepository) GetPlanQuota(ctx context.Context, q sqlx.ExtContext, plan string) (int, error) {
	const query = `SELECT monthly_quota FROM subscription_plans WHERE code = $1`
	var quota int
	if err := sqlx.GetContext(ctx, pick(r.db, q), &quota, query, plan); err != nil {
		return 0, fmt.Errorf("get plan quota: %w", err)
	}
	return quota, nil
}

// GetUsage returns exams consumed in a period; a missing row means zero.
func (r *SubscriptionRepository) GetUsage(ctx context.Context, q sqlx.ExtContext, studentID, period string) (int, error) {
	const query = `SELECT exams_used FROM exam_usage WHERE student_id = $1 AND period = $2`
	var used int
	err := sqlx.GetContext(ctx, pick(r.db, q), &used, query, studentID, period)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get exam usage: %w", err)
	}
	return used, nil
}

// IncrementUsage consumes one exam when usage is below quota. The check and
// the increment are a single statement; ok is false at the quota boundary.
func (r *SubscriptionRepository) IncrementUsage(ctx context.Context, q sqlx.ExtContext, studentID, period string, quota int) (int, bool, error) {
	const query = `INSERT INTO exam_usage (student_id, period, exams_used, updated_at) VALUES ($1, $2, 1, $3)
ON CONFLICT (student_id, period) DO UPDATE
SET exams_used = exam_usage.exams_used + 1, updated_at = EXCLUDED.updated_at
WHERE exam_usage.exams_used < $4
RETURNING exams_used`
	var used int
	err := sqlx.GetContext(ctx, pick(r.db, q), &used, query, studentID, period, time.Now().UTC(), quota)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment exam usage: %w", err)
	}
	return used, true, nil
}

// LockStudent serialises window writes for one student until the transaction ends.
func (r *SubscriptionRepository) LockStudent(ctx context.Context, q sqlx.ExtContext, studentID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := pick(r.db, q).ExecContext(ctx, query, "subscription:"+studentID); err != nil {
		return fmt.Errorf("lock student subscriptions: %w", err)
	}
	return nil
}

// ListActiveOverlapping returns active windows sharing a date with [start, end].
func (r *SubscriptionRepository) ListActiveOverlapping(ctx context.Context, q sqlx.ExtContext, studentID string, start, end time.Time) ([]models.SubscriptionWindow, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_windows
WHERE student_id = $1 AND active = TRUE AND start_date <= $3 AND end_date >= $2`
	var windows []models.SubscriptionWindow
	if err := sqlx.SelectContext(ctx, pick(r.db, q), &windows, query, studentID, start.Format("2006-01-02"), end.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list overlapping subscriptions: %w", err)
	}
	return windows, nil
}

// CreateWindow inserts a subscription window.
func (r *SubscriptionRepository) CreateWindow(ctx context.Context, q sqlx.ExtContext, w *models.SubscriptionWindow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subscription_windows (id, student_id, plan, start_date, end_date, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := pick(r.db, q).ExecContext(ctx, query,
		w.ID, w.StudentID, w.Plan, w.StartDate.Format("2006-01-02"), w.EndDate.Format("2006-01-02"), w.Active, w.CreatedAt); err != nil {
		return fmt.Errorf("create subscription window: %w", err)
	}
	return nil
}
