package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/telemetry"
)

// Tie-break rules between equally loaded teachers.
const (
	// TieBreakCountThenRecency prefers the teacher whose last assignment is
	// oldest; teachers never assigned come first.
	TieBreakCountThenRecency = "count_then_recency"
	// TieBreakCountOnly falls back to teacher id order.
	TieBreakCountOnly = "count_only"
)

const evaluationScanLease = "evaluation-scan"

type evaluationStore interface {
	Create(ctx context.Context, q sqlx.ExtContext, eval *models.Evaluation) (bool, error)
	GetByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.Evaluation, error)
	Lock(ctx context.Context, q sqlx.ExtContext, id string) (*models.Evaluation, error)
	Assign(ctx context.Context, id, teacherID string, at time.Time) (bool, error)
	MarkAssignmentFailed(ctx context.Context, id string, at time.Time) (bool, error)
	MarkInProgress(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error
	Complete(ctx context.Context, q sqlx.ExtContext, id string, manualScore float64, at time.Time) (bool, error)
	MarkBreached(ctx context.Context, now time.Time, limit int) ([]models.BreachRecord, error)
	ListUnassigned(ctx context.Context, limit int) ([]models.Evaluation, error)
	ListBreaches(ctx context.Context, since time.Time, limit, offset int) ([]models.BreachRecord, error)
	UpsertQuestionMark(ctx context.Context, q sqlx.ExtContext, mark *models.QuestionMark) error
	ListQuestionMarks(ctx context.Context, q sqlx.ExtContext, evaluationID string) ([]models.QuestionMark, error)
}

type teacherLoadReader interface {
	ListActiveLoads(ctx context.Context) ([]models.TeacherLoad, error)
}

type gradedExamStore interface {
	GetByID(ctx context.Context, id string) (*models.ExamInstance, error)
	Lock(ctx context.Context, q sqlx.ExtContext, id string, shared bool) (*models.ExamInstance, error)
	Finalize(ctx context.Context, q sqlx.ExtContext, id string, to models.ExamState, manualScore *float64) (bool, error)
}

type answerReader interface {
	ListByInstance(ctx context.Context, q sqlx.ExtContext, instanceID string) ([]models.StudentAnswer, error)
}

type deadlineCalendar interface {
	Deadline(start time.Time, slaHours int) (time.Time, error)
	Refresh(ctx context.Context) error
}

type urlSigner interface {
	Sign(objectKey, readerID string) (string, time.Time, error)
}

// EvaluationSchedulerConfig tunes assignment and the breach scan.
type EvaluationSchedulerConfig struct {
	ScanInterval time.Duration
	ScanBatch    int
	TieBreak     string
	LeaseTTL     time.Duration
}

// EvaluationSchedulerDeps groups the collaborators of the scheduler.
type EvaluationSchedulerDeps struct {
	Evaluations evaluationStore
	Teachers    teacherLoadReader
	Exams       gradedExamStore
	Answers     answerReader
	Calendar    deadlineCalendar
	Signer      urlSigner
	Notifier    eventNotifier
	Lease       leaseAcquirer
	Tx          transactor
}

// ScanResult summarises one scan cycle.
type ScanResult struct {
	Breached int `json:"breached"`
	Assigned int `json:"assigned"`
	Failed   int `json:"failed"`
}

// EvaluationSchedulerService creates evaluations for submitted exams, assigns
// them to the least loaded teacher and tracks their SLA deadlines.
type EvaluationSchedulerService struct {
	evaluations evaluationStore
	teachers    teacherLoadReader
	exams       gradedExamStore
	answers     answerReader
	calendar    deadlineCalendar
	signer      urlSigner
	notifier    eventNotifier
	lease       leaseAcquirer
	tx          transactor
	cfg         EvaluationSchedulerConfig
	validate    *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewEvaluationSchedulerService validates the tie-break rule and wires the scheduler.
func NewEvaluationSchedulerService(deps EvaluationSchedulerDeps, cfg EvaluationSchedulerConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) (*EvaluationSchedulerService, error) {
	switch cfg.TieBreak {
	case "":
		cfg.TieBreak = TieBreakCountThenRecency
	case TieBreakCountThenRecency, TieBreakCountOnly:
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("unknown tie-break rule %q", cfg.TieBreak))
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 200
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationSchedulerService{
		evaluations: deps.Evaluations,
		teachers:    deps.Teachers,
		exams:       deps.Exams,
		answers:     deps.Answers,
		calendar:    deps.Calendar,
		signer:      deps.Signer,
		notifier:    deps.Notifier,
		lease:       deps.Lease,
		tx:          deps.Tx,
		cfg:         cfg,
		validate:    validate,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// OnSubmission creates the pending evaluation of a submitted exam inside the
// submission transaction.
func (s *EvaluationSchedulerService) OnSubmission(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (*models.Evaluation, error) {
	if inst.SubmittedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "exam has not been submitted")
	}
	deadline, err := s.calendar.Deadline(*inst.SubmittedAt, inst.SLAHours)
	if err != nil {
		return nil, err
	}
	eval := &models.Evaluation{
		ExamInstanceID: inst.ID,
		SLAHours:       inst.SLAHours,
		Deadline:       deadline,
		Status:         models.EvaluationStatusPending,
	}
	created, err := s.evaluations.Create(ctx, q, eval)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create evaluation")
	}
	if !created {
		return nil, appErrors.WithDetails(appErrors.ErrDuplicateEvaluation, "", map[string]interface{}{"exam_instance_id": inst.ID})
	}
	s.metrics.EvaluationCreated()
	s.logger.Info("evaluation created",
		zap.String("evaluation_id", eval.ID),
		zap.String("exam_id", inst.ID),
		zap.Time("deadline", deadline))
	return eval, nil
}

// pickTeacher returns the least loaded teacher under the given tie-break.
func pickTeacher(loads []models.TeacherLoad, tieBreak string) (string, bool) {
	if len(loads) == 0 {
		return "", false
	}
	ordered := make([]models.TeacherLoad, len(loads))
	copy(ordered, loads)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ActiveCount != b.ActiveCount {
			return a.ActiveCount < b.ActiveCount
		}
		if tieBreak == TieBreakCountThenRecency {
			switch {
			case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
				return true
			case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
				return false
			case a.LastAssignedAt != nil && b.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
				return a.LastAssignedAt.Before(*b.LastAssignedAt)
			}
		}
		return a.TeacherID < b.TeacherID
	})
	return ordered[0].TeacherID, true
}

// AssignEvaluation gives an unassigned evaluation to the least loaded active
// teacher. An already assigned evaluation keeps its teacher.
func (s *EvaluationSchedulerService) AssignEvaluation(ctx context.Context, evaluationID string) (string, error) {
	eval, err := s.loadEvaluation(ctx, evaluationID)
	if err != nil {
		return "", err
	}
	if eval.AssignedTeacherID != nil {
		return *eval.AssignedTeacherID, nil
	}
	if eval.Status.IsTerminal() {
		return "", appErrors.WithDetails(appErrors.ErrInvalidStateTransition, "evaluation is already completed", map[string]interface{}{
			"current_state": eval.Status,
		})
	}

	loads, err := s.teachers.ListActiveLoads(ctx)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher workloads")
	}
	teacherID, ok := pickTeacher(loads, s.cfg.TieBreak)
	if !ok {
		s.metrics.AssignmentFailed()
		// The marker is persisted once per evaluation, so only the replica
		// that sets it announces the failure.
		first, err := s.evaluations.MarkAssignmentFailed(ctx, eval.ID, s.now().UTC())
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record assignment failure")
		}
		if first {
			s.logger.Warn("no active teacher for evaluation", zap.String("evaluation_id", eval.ID))
			s.notify(ctx, models.EventEvaluationAssignmentFailed, models.AssignmentFailedData{
				EvaluationID: eval.ID,
				Deadline:     eval.Deadline,
				Reason:       "no_active_teacher",
			})
		}
		return "", appErrors.WithDetails(appErrors.ErrAssignmentFailure, "", map[string]interface{}{"evaluation_id": eval.ID})
	}

	now := s.now().UTC()
	assigned, err := s.evaluations.Assign(ctx, eval.ID, teacherID, now)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign evaluation")
	}
	if !assigned {
		current, err := s.loadEvaluation(ctx, evaluationID)
		if err != nil {
			return "", err
		}
		if current.AssignedTeacherID != nil {
			return *current.AssignedTeacherID, nil
		}
		return "", appErrors.WithDetails(appErrors.ErrInvalidStateTransition, "evaluation can no longer be assigned", map[string]interface{}{
			"current_state": current.Status,
		})
	}

	s.metrics.EvaluationAssigned()
	s.logger.Info("evaluation assigned", zap.String("evaluation_id", eval.ID), zap.String("teacher_id", teacherID))
	s.notify(ctx, models.EventEvaluationAssigned, models.EvaluationAssignedData{
		EvaluationID: eval.ID,
		TeacherID:    teacherID,
		Deadline:     eval.Deadline,
	})
	return teacherID, nil
}

// ScanOnce flags evaluations past their deadline and retries unassigned work.
// Breach flagging is a single conditional update, so a concurrent completion
// either lands first (and is not flagged) or keeps the breach marker.
func (s *EvaluationSchedulerService) ScanOnce(ctx context.Context) (ScanResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.scan")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveScan("evaluation", time.Since(started)) }()

	var result ScanResult
	if err := s.calendar.Refresh(ctx); err != nil {
		s.logger.Warn("holiday refresh failed; keeping previous calendar", zap.Error(err))
	}

	breaches, err := s.evaluations.MarkBreached(ctx, s.now().UTC(), s.cfg.ScanBatch)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag breached evaluations")
	}
	for _, record := range breaches {
		s.notify(ctx, models.EventEvaluationBreached, record)
	}
	result.Breached = len(breaches)
	s.metrics.EvaluationsBreached(len(breaches))
	if len(breaches) > 0 {
		s.logger.Warn("evaluations breached SLA", zap.Int("count", len(breaches)))
	}

	pending, err := s.evaluations.ListUnassigned(ctx, s.cfg.ScanBatch)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unassigned evaluations")
	}
	for _, eval := range pending {
		if _, err := s.AssignEvaluation(ctx, eval.ID); err != nil {
			result.Failed++
			if appErrors.FromError(err).Code != appErrors.ErrAssignmentFailure.Code {
				s.logger.Error("assignment retry failed", zap.String("evaluation_id", eval.ID), zap.Error(err))
			}
			continue
		}
		result.Assigned++
	}

	span.SetAttributes(
		attribute.Int("evaluation.breached", result.Breached),
		attribute.Int("evaluation.assigned", result.Assigned),
		attribute.Int("evaluation.failed", result.Failed),
	)
	return result, nil
}

// Start runs ScanOnce on a ticker until ctx is cancelled. A Redis lease keeps
// the scan to one replica per cycle.
func (s *EvaluationSchedulerService) Start(ctx context.Context) {
	if s.cfg.ScanInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ScanInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.scanCycle(ctx)
			}
		}
	}()
}

func (s *EvaluationSchedulerService) scanCycle(ctx context.Context) {
	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx, evaluationScanLease, s.cfg.LeaseTTL)
		if err != nil {
			s.logger.Warn("evaluation scan lease unavailable", zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("evaluation scan held by another replica")
			return
		}
		defer release(context.Background())
	}
	if _, err := s.ScanOnce(ctx); err != nil {
		s.logger.Error("evaluation scan failed", zap.Error(err))
	}
}

// SubmitQuestionMarks stores the assignee's marks for subjective questions.
func (s *EvaluationSchedulerService) SubmitQuestionMarks(ctx context.Context, evaluationID, teacherID string, req dto.SubmitMarksRequest) ([]models.QuestionMark, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}
	var saved []models.QuestionMark
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		eval, inst, err := s.lockForGrading(ctx, q, evaluationID, teacherID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, in := range req.Marks {
			question, ok := inst.Snapshot.Question(in.QuestionNumber)
			if !ok || question.Kind != models.QuestionKindSubjective {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d is not a subjective question of this exam", in.QuestionNumber))
			}
			if in.MarksAwarded < 0 || in.MarksAwarded > question.Marks {
				return appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("marks for question %d must be between 0 and %g", in.QuestionNumber, question.Marks), map[string]interface{}{
					"question_number": in.QuestionNumber,
					"marks_possible":  question.Marks,
				})
			}
			mark := models.QuestionMark{
				EvaluationID:   eval.ID,
				QuestionNumber: in.QuestionNumber,
				MarksAwarded:   in.MarksAwarded,
				MarksPossible:  question.Marks,
				TeacherID:      teacherID,
				Comment:        in.Comment,
				UpdatedAt:      now,
			}
			if err := s.evaluations.UpsertQuestionMark(ctx, q, &mark); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save question mark")
			}
			saved = append(saved, mark)
		}
		if err := s.evaluations.MarkInProgress(ctx, q, eval.ID, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update evaluation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *EvaluationSchedulerService) lockForGrading(ctx context.Context, q sqlx.ExtContext, evaluationID, teacherID string) (*models.Evaluation, *models.ExamInstance, error) {
	eval, err := s.evaluations.Lock(ctx, q, evaluationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	if eval.Status.IsTerminal() {
		return nil, nil, appErrors.WithDetails(appErrors.ErrInvalidStateTransition, "evaluation is already completed", map[string]interface{}{
			"current_state": eval.Status,
		})
	}
	if eval.AssignedTeacherID == nil || *eval.AssignedTeacherID != teacherID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "evaluation is assigned to another teacher")
	}
	inst, err := s.exams.Lock(ctx, q, eval.ExamInstanceID, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return eval, inst, nil
}

// CompleteEvaluation finalises grading once every subjective question has a
// mark. It is accepted from any non-completed status, including breached,
// and the breach marker is kept.
func (s *EvaluationSchedulerService) CompleteEvaluation(ctx context.Context, evaluationID, teacherID string) (*models.Evaluation, error) {
	var completed *models.Evaluation
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		eval, inst, err := s.lockForGrading(ctx, q, evaluationID, teacherID)
		if err != nil {
			return err
		}
		marks, err := s.evaluations.ListQuestionMarks(ctx, q, eval.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question marks")
		}
		byNumber := make(map[int]float64, len(marks))
		for _, m := range marks {
			byNumber[m.QuestionNumber] = m.MarksAwarded
		}
		var (
			manual  float64
			missing []int
		)
		for _, number := range inst.Snapshot.SubjectiveNumbers() {
			awarded, ok := byNumber[number]
			if !ok {
				missing = append(missing, number)
				continue
			}
			manual += awarded
		}
		if len(missing) > 0 {
			return appErrors.WithDetails(appErrors.ErrPreconditionFailed, "every subjective question needs a mark", map[string]interface{}{
				"missing_questions": missing,
			})
		}

		now := s.now().UTC()
		ok, err := s.evaluations.Complete(ctx, q, eval.ID, manual, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete evaluation")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidStateTransition, "evaluation is already completed")
		}
		ok, err = s.exams.Finalize(ctx, q, inst.ID, models.ExamStateEvaluated, &manual)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize exam")
		}
		if !ok {
			return appErrors.WithDetails(appErrors.ErrInvalidStateTransition, "exam is not awaiting evaluation", map[string]interface{}{
				"current_state": inst.State,
			})
		}
		eval.Status = models.EvaluationStatusCompleted
		eval.ManualScore = &manual
		eval.CompletedAt = &now
		completed = eval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.EvaluationCompleted(completed.WasBreached())
	s.logger.Info("evaluation completed",
		zap.String("evaluation_id", completed.ID),
		zap.Bool("was_breached", completed.WasBreached()))
	s.notify(ctx, models.EventEvaluationCompleted, models.EvaluationCompletedData{
		EvaluationID:   completed.ID,
		ExamInstanceID: completed.ExamInstanceID,
		ManualScore:    *completed.ManualScore,
		WasBreached:    completed.WasBreached(),
	})
	return completed, nil
}

// GetEvaluation returns the grader view with short-lived answer-sheet links.
func (s *EvaluationSchedulerService) GetEvaluation(ctx context.Context, evaluationID, actorID string, role models.UserRole) (*dto.EvaluationDetailResponse, error) {
	eval, err := s.loadEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && (eval.AssignedTeacherID == nil || *eval.AssignedTeacherID != actorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "evaluation is assigned to another teacher")
	}
	inst, err := s.exams.GetByID(ctx, eval.ExamInstanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	answers, err := s.answers.ListByInstance(ctx, nil, inst.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	marks, err := s.evaluations.ListQuestionMarks(ctx, nil, eval.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question marks")
	}

	sheets := make(map[int]string, len(answers))
	for _, a := range answers {
		if a.AnswerSheetKey != nil {
			sheets[a.QuestionNumber] = *a.AnswerSheetKey
		}
	}
	marked := make(map[int]models.QuestionMark, len(marks))
	for _, m := range marks {
		marked[m.QuestionNumber] = m
	}

	resp := &dto.EvaluationDetailResponse{
		Evaluation:     *eval,
		WasBreached:    eval.WasBreached(),
		AutomatedScore: inst.AutomatedScore,
		TotalMarks:     inst.TotalMarks,
	}
	for _, number := range inst.Snapshot.SubjectiveNumbers() {
		question, _ := inst.Snapshot.Question(number)
		view := dto.EvaluationQuestionView{Number: number, Text: question.Text, Marks: question.Marks}
		if question.Subjective != nil {
			view.MaxWords = question.Subjective.MaxWords
			view.Rubric = question.Subjective.Rubric
		}
		if key, ok := sheets[number]; ok && s.signer != nil {
			link, expires, err := s.signer.Sign(key, actorID)
			if err != nil {
				s.logger.Warn("answer sheet signing failed", zap.String("evaluation_id", eval.ID), zap.Int("question", number), zap.Error(err))
			} else {
				view.AnswerSheetURL = link
				view.URLExpiresAt = &expires
			}
		}
		if m, ok := marked[number]; ok {
			mark := m
			view.Mark = &mark
		}
		resp.Questions = append(resp.Questions, view)
	}
	return resp, nil
}

// ListBreaches is the pull form of the breach feed.
func (s *EvaluationSchedulerService) ListBreaches(ctx context.Context, since time.Time, limit, offset int) ([]models.BreachRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.evaluations.ListBreaches(ctx, since, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list breaches")
	}
	return records, nil
}

func (s *EvaluationSchedulerService) loadEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	eval, err := s.evaluations.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	return eval, nil
}

func (s *EvaluationSchedulerService) notify(ctx context.Context, eventType models.EventType, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, eventType, data)
}
