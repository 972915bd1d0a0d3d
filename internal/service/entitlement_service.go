package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

type subscriptionStore interface {
	ListActiveCovering(ctx context.Context, q sqlx.ExtContext, studentID string, day time.Time) ([]models.SubscriptionWindow, error)
	GetPlanQuota(ctx context.Context, q sqlx.ExtContext, plan string) (int, error)
	GetUsage(ctx context.Context, q sqlx.ExtContext, studentID, period string) (int, error)
	IncrementUsage(ctx context.Context, q sqlx.ExtContext, studentID, period string, quota int) (int, bool, error)
	LockStudent(ctx context.Context, q sqlx.ExtContext, studentID string) error
	ListActiveOverlapping(ctx context.Context, q sqlx.ExtContext, studentID string, start, end time.Time) ([]models.SubscriptionWindow, error)
	CreateWindow(ctx context.Context, q sqlx.ExtContext, w *models.SubscriptionWindow) error
}

// EntitlementService decides whether a student may start another exam and
// consumes monthly quota inside the exam creation transaction.
type EntitlementService struct {
	store    subscriptionStore
	tx       transactor
	loc      *time.Location
	validate *validator.Validate
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewEntitlementService constructs the guard. Dates and usage periods are
// evaluated in loc.
func NewEntitlementService(store subscriptionStore, tx transactor, loc *time.Location, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *EntitlementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EntitlementService{store: store, tx: tx, loc: loc, validate: validate, metrics: metrics, logger: logger, now: time.Now}
}

// UsagePeriod is the monthly bucket usage is counted in.
func (s *EntitlementService) UsagePeriod(at time.Time) string {
	return at.In(s.loc).Format("2006-01")
}

// CanStartExam is a read-only check; it never consumes quota.
func (s *EntitlementService) CanStartExam(ctx context.Context, studentID string) (*models.Entitlement, error) {
	now := s.now()
	ent := &models.Entitlement{Period: s.UsagePeriod(now)}

	window, err := s.coveringWindow(ctx, nil, studentID, now)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrNoActiveSubscription.Code {
			ent.Reason = models.EntitlementReasonNoSubscription
			return ent, nil
		}
		return nil, err
	}
	ent.Plan = window.Plan

	quota, err := s.store.GetPlanQuota(ctx, nil, window.Plan)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan quota")
	}
	used, err := s.store.GetUsage(ctx, nil, studentID, ent.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam usage")
	}
	ent.Quota = quota
	ent.Used = used
	ent.Allowed = used < quota
	if !ent.Allowed {
		ent.Reason = models.EntitlementReasonQuotaExceeded
	}
	return ent, nil
}

// Consume checks the subscription and takes one exam from the monthly quota
// using q, the caller's transaction. The quota check and increment are one
// conditional statement so concurrent starts cannot pass the boundary together.
func (s *EntitlementService) Consume(ctx context.Context, q sqlx.ExtContext, studentID string, now time.Time) (*models.Entitlement, error) {
	window, err := s.coveringWindow(ctx, q, studentID, now)
	if err != nil {
		return nil, err
	}
	quota, err := s.store.GetPlanQuota(ctx, q, window.Plan)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan quota")
	}
	period := s.UsagePeriod(now)
	if quota <= 0 {
		s.metrics.EntitlementDenied(string(models.EntitlementReasonQuotaExceeded))
		return nil, quotaExceeded(period, 0, quota)
	}

	used, ok, err := s.store.IncrementUsage(ctx, q, studentID, period, quota)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume exam quota")
	}
	if !ok {
		s.metrics.EntitlementDenied(string(models.EntitlementReasonQuotaExceeded))
		return nil, quotaExceeded(period, quota, quota)
	}
	return &models.Entitlement{Allowed: true, Plan: window.Plan, Period: period, Used: used, Quota: quota}, nil
}

func quotaExceeded(period string, used, quota int) error {
	return appErrors.WithDetails(appErrors.ErrQuotaExceeded, "", map[string]interface{}{
		"period": period,
		"used":   used,
		"quota":  quota,
	})
}

func (s *EntitlementService) coveringWindow(ctx context.Context, q sqlx.ExtContext, studentID string, now time.Time) (*models.SubscriptionWindow, error) {
	windows, err := s.store.ListActiveCovering(ctx, q, studentID, now.In(s.loc))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscriptions")
	}
	switch len(windows) {
	case 1:
		return &windows[0], nil
	case 0:
		s.metrics.EntitlementDenied(string(models.EntitlementReasonNoSubscription))
		return nil, appErrors.ErrNoActiveSubscription
	default:
		s.logger.Error("overlapping active subscriptions", zap.String("student_id", studentID), zap.Int("windows", len(windows)))
		s.metrics.EntitlementDenied(string(models.EntitlementReasonNoSubscription))
		return nil, appErrors.Clone(appErrors.ErrNoActiveSubscription, "subscription data is inconsistent")
	}
}

// CreateWindow registers a subscription window. Active windows of one
// student never overlap: writes are serialised per student and checked in the
// same transaction, with the database exclusion constraint as a backstop.
func (s *EntitlementService) CreateWindow(ctx context.Context, req dto.CreateSubscriptionRequest) (*models.SubscriptionWindow, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subscription payload")
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}

	window := &models.SubscriptionWindow{
		StudentID: req.StudentID,
		Plan:      req.Plan,
		StartDate: start,
		EndDate:   end,
		Active:    true,
	}
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		if _, err := s.store.GetPlanQuota(ctx, q, req.Plan); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown plan %q", req.Plan))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
		}
		if err := s.store.LockStudent(ctx, q, req.StudentID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock subscriptions")
		}
		existing, err := s.store.ListActiveOverlapping(ctx, q, req.StudentID, start, end)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping subscriptions")
		}
		if len(existing) > 0 {
			return appErrors.WithDetails(appErrors.ErrSubscriptionOverlap, "", map[string]interface{}{
				"conflicting_window_id": existing[0].ID,
			})
		}
		if err := s.store.CreateWindow(ctx, q, window); err != nil {
			if database.IsExclusionViolation(err) {
				return appErrors.ErrSubscriptionOverlap
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subscription window")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscription window created", zap.String("student_id", window.StudentID), zap.String("window_id", window.ID))
	return window, nil
}
