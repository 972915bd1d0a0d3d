package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/telemetry"
)

// DefaultSubmissionGrace absorbs network latency between the client timer
// reaching zero and the submission arriving.
const DefaultSubmissionGrace = 5 * time.Minute

const autoSubmitLease = "exam-auto-submit"

type templateReader interface {
	GetLatestPublished(ctx context.Context, id string) (*models.ExamTemplate, error)
}

type questionBank interface {
	ListCandidates(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error)
}

type examStore interface {
	examLocker
	Create(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (bool, error)
	GetByID(ctx context.Context, id string) (*models.ExamInstance, error)
	GetByAttemptKey(ctx context.Context, q sqlx.ExtContext, studentID, attemptKey string) (*models.ExamInstance, error)
	TryLock(ctx context.Context, q sqlx.ExtContext, id string) (*models.ExamInstance, error)
	MarkStarted(ctx context.Context, q sqlx.ExtContext, id string, startedAt time.Time) (bool, error)
	MarkSubmitted(ctx context.Context, q sqlx.ExtContext, id string, submittedAt time.Time, reason models.SubmitReason, automatedScore float64) (bool, error)
	Finalize(ctx context.Context, q sqlx.ExtContext, id string, to models.ExamState, manualScore *float64) (bool, error)
	ListExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type answerLedger interface {
	RecordAll(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance, inputs []models.AnswerInput) error
	Score(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (float64, error)
	List(ctx context.Context, instanceID string) ([]models.StudentAnswer, error)
}

type quotaConsumer interface {
	Consume(ctx context.Context, q sqlx.ExtContext, studentID string, now time.Time) (*models.Entitlement, error)
}

type submissionScheduler interface {
	OnSubmission(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (*models.Evaluation, error)
	AssignEvaluation(ctx context.Context, evaluationID string) (string, error)
}

type evaluationLookup interface {
	GetByExamInstance(ctx context.Context, instanceID string) (*models.Evaluation, error)
}

type eventNotifier interface {
	Notify(ctx context.Context, eventType models.EventType, data interface{})
}

// ExamSessionConfig tunes the session manager.
type ExamSessionConfig struct {
	SubmissionGrace    time.Duration
	AutoSubmitInterval time.Duration
	AutoSubmitBatch    int
	LeaseTTL           time.Duration
}

// ExamSessionService owns the exam attempt lifecycle:
// created -> in_progress -> submitted_mcq -> evaluated | no_evaluation_needed.
type ExamSessionService struct {
	templates   templateReader
	questions   questionBank
	exams       examStore
	ledger      answerLedger
	entitlement quotaConsumer
	scheduler   submissionScheduler
	evaluations evaluationLookup
	notifier    eventNotifier
	lease       leaseAcquirer
	tx          transactor
	cfg         ExamSessionConfig
	validate    *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// ExamSessionDeps groups the collaborators of the session manager.
type ExamSessionDeps struct {
	Templates   templateReader
	Questions   questionBank
	Exams       examStore
	Ledger      answerLedger
	Entitlement quotaConsumer
	Scheduler   submissionScheduler
	Evaluations evaluationLookup
	Notifier    eventNotifier
	Lease       leaseAcquirer
	Tx          transactor
}

// NewExamSessionService wires the session manager.
func NewExamSessionService(deps ExamSessionDeps, cfg ExamSessionConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ExamSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmissionGrace < 0 {
		cfg.SubmissionGrace = DefaultSubmissionGrace
	}
	if cfg.AutoSubmitBatch <= 0 {
		cfg.AutoSubmitBatch = 100
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	return &ExamSessionService{
		templates:   deps.Templates,
		questions:   deps.Questions,
		exams:       deps.Exams,
		ledger:      deps.Ledger,
		entitlement: deps.Entitlement,
		scheduler:   deps.Scheduler,
		evaluations: deps.Evaluations,
		notifier:    deps.Notifier,
		lease:       deps.Lease,
		tx:          deps.Tx,
		cfg:         cfg,
		validate:    validate,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start freezes a snapshot for the student and starts the clock. Quota is
// consumed in the same transaction that creates the attempt; a repeated
// attempt key returns the original attempt and consumes nothing.
func (s *ExamSessionService) Start(ctx context.Context, req dto.StartExamRequest) (*dto.ExamSessionResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start payload")
	}
	if req.AttemptKey == "" {
		req.AttemptKey = uuid.NewString()
	} else {
		existing, err := s.exams.GetByAttemptKey(ctx, nil, req.StudentID, req.AttemptKey)
		if err == nil {
			return s.sessionView(existing, nil, true), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
		}
	}

	tpl, err := s.templates.GetLatestPublished(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam template")
	}
	if tpl.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exam template has no duration")
	}

	snapshot, err := s.buildSnapshot(ctx, tpl, req.SelectedUnits)
	if err != nil {
		return nil, err
	}
	if snapshot.HasSubjective() {
		if err := ValidateSLA(tpl.SLAHours); err != nil {
			return nil, err
		}
	}
	if err := snapshot.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "question bank produced an invalid snapshot")
	}

	inst := &models.ExamInstance{
		StudentID:       req.StudentID,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		AttemptKey:      req.AttemptKey,
		Snapshot:        snapshot,
		DurationMinutes: tpl.DurationMinutes,
		TotalMarks:      snapshot.TotalMarks(),
		SLAHours:        tpl.SLAHours,
	}

	resumed := false
	err = s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		created, err := s.exams.Create(ctx, q, inst)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
		}
		if !created {
			existing, err := s.exams.GetByAttemptKey(ctx, q, req.StudentID, req.AttemptKey)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
			}
			inst = existing
			resumed = true
			return nil
		}
		now := s.now().UTC()
		if _, err := s.entitlement.Consume(ctx, q, req.StudentID, now); err != nil {
			return err
		}
		ok, err := s.exams.MarkStarted(ctx, q, inst.ID, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start exam")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidStateTransition, "exam could not be started")
		}
		inst.State = models.ExamStateInProgress
		inst.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !resumed {
		s.metrics.ExamStarted()
		s.logger.Info("exam started",
			zap.String("exam_id", inst.ID),
			zap.String("student_id", inst.StudentID),
			zap.String("template_id", inst.TemplateID),
			zap.Int("questions", len(inst.Snapshot)))
	}
	return s.sessionView(inst, nil, resumed), nil
}

func (s *ExamSessionService) buildSnapshot(ctx context.Context, tpl *models.ExamTemplate, selectedUnits []string) (models.Snapshot, error) {
	if len(tpl.Rules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exam template has no section rules")
	}
	used := make(map[string]struct{})
	var snapshot models.Snapshot
	for i, rule := range tpl.Rules {
		units, err := ruleUnits(rule, selectedUnits)
		if err != nil {
			return nil, err
		}
		buckets := map[models.Difficulty]int{"": rule.Count}
		if len(rule.DifficultyMix) > 0 {
			buckets = rule.DifficultyMix
			total := 0
			for _, n := range buckets {
				total += n
			}
			if total != rule.Count {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("section %d difficulty mix does not add up to %d", i+1, rule.Count))
			}
		}

		levels := make([]models.Difficulty, 0, len(buckets))
		for level := range buckets {
			levels = append(levels, level)
		}
		sort.Slice(levels, func(a, b int) bool { return levels[a] < levels[b] })

		for _, level := range levels {
			want := buckets[level]
			if want <= 0 {
				continue
			}
			filter := models.QuestionFilter{Kind: rule.Kind, Units: units}
			if level != "" {
				lv := level
				filter.Difficulty = &lv
			}
			candidates, err := s.questions.ListCandidates(ctx, filter)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question bank")
			}
			picked := s.sample(candidates, used, want)
			if len(picked) < want {
				return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "not enough questions in the bank", map[string]interface{}{
					"section":    i + 1,
					"kind":       rule.Kind,
					"difficulty": level,
					"wanted":     want,
					"available":  len(picked),
				})
			}
			for _, question := range picked {
				used[question.ID] = struct{}{}
				snapshot = append(snapshot, freezeQuestion(len(snapshot)+1, question, rule.Marks))
			}
		}
	}
	// A published total of zero means the total follows the sampled questions.
	if tpl.TotalMarks > 0 && math.Abs(snapshot.TotalMarks()-tpl.TotalMarks) > 1e-6 {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "exam template rules do not add up to its published total", map[string]interface{}{
			"template_id":   tpl.ID,
			"version":       tpl.Version,
			"published":     tpl.TotalMarks,
			"sampled_total": snapshot.TotalMarks(),
		})
	}
	return snapshot, nil
}

// ruleUnits narrows a rule to the units the student selected. An empty list
// means any unit.
func ruleUnits(rule models.SectionRule, selected []string) ([]string, error) {
	if len(selected) == 0 {
		return rule.Units, nil
	}
	if len(rule.Units) == 0 {
		return selected, nil
	}
	allowed := make(map[string]struct{}, len(rule.Units))
	for _, u := range rule.Units {
		allowed[u] = struct{}{}
	}
	var out []string
	for _, u := range selected {
		if _, ok := allowed[u]; ok {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "selected units do not match the exam sections")
	}
	return out, nil
}

func (s *ExamSessionService) sample(candidates []models.Question, used map[string]struct{}, want int) []models.Question {
	pool := make([]models.Question, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := used[c.ID]; !dup {
			pool = append(pool, c)
		}
	}
	s.rngMu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.rngMu.Unlock()
	if len(pool) > want {
		pool = pool[:want]
	}
	return pool
}

// freezeQuestion copies a bank question into the snapshot so later bank
// edits never reach a running attempt.
func freezeQuestion(number int, q models.Question, ruleMarks float64) models.SnapshotQuestion {
	marks := q.Marks
	if ruleMarks > 0 {
		marks = ruleMarks
	}
	out := models.SnapshotQuestion{
		Number:     number,
		QuestionID: q.ID,
		Kind:       q.Kind,
		Text:       q.Text,
		Marks:      marks,
		Unit:       q.Unit,
		Difficulty: q.Difficulty,
	}
	switch q.Kind {
	case models.QuestionKindObjective:
		opts := make(models.Options, len(q.Options))
		copy(opts, q.Options)
		payload := &models.ObjectivePayload{Options: opts}
		if q.CorrectOption != nil {
			payload.CorrectOption = *q.CorrectOption
		}
		out.Objective = payload
	case models.QuestionKindSubjective:
		payload := &models.SubjectivePayload{}
		if q.MaxWords != nil {
			payload.MaxWords = *q.MaxWords
		}
		if q.Rubric != nil {
			payload.Rubric = *q.Rubric
		}
		out.Subjective = payload
	}
	return out
}

// Submit records the final answers, scores objective questions and hands
// subjective work to the evaluation scheduler.
func (s *ExamSessionService) Submit(ctx context.Context, instanceID, studentID string, req dto.SubmitAnswersRequest) (*dto.SubmitResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "exam.submit")
	defer span.End()
	span.SetAttributes(attribute.String("exam.id", instanceID))

	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	var (
		result *dto.SubmitResult
		eval   *models.Evaluation
	)
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		inst, err := s.exams.Lock(ctx, q, instanceID, false)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
		}
		if inst.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another student")
		}
		now := s.now().UTC()
		if !inst.AcceptsAnswersAt(now, s.cfg.SubmissionGrace) {
			return closedError(appErrors.ErrInvalidStateTransition, inst)
		}
		if err := s.ledger.RecordAll(ctx, q, inst, req.Answers); err != nil {
			return err
		}
		result, eval, err = s.finalize(ctx, q, inst, now, models.SubmitReasonManual)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.ExamSubmitted(string(models.SubmitReasonManual))
	s.assignAfterCommit(ctx, eval)
	return result, nil
}

// finalize scores inst and moves it out of in_progress. It runs inside the
// caller's transaction with inst locked.
func (s *ExamSessionService) finalize(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance, now time.Time, reason models.SubmitReason) (*dto.SubmitResult, *models.Evaluation, error) {
	score, err := s.ledger.Score(ctx, q, inst)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.exams.MarkSubmitted(ctx, q, inst.ID, now, reason, score)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit exam")
	}
	if !ok {
		return nil, nil, closedError(appErrors.ErrInvalidStateTransition, inst)
	}
	inst.State = models.ExamStateSubmittedMCQ
	inst.SubmittedAt = &now
	inst.SubmitReason = &reason
	inst.AutomatedScore = &score

	result := &dto.SubmitResult{
		ExamInstanceID: inst.ID,
		SubmittedAt:    now,
		AutomatedScore: score,
		TotalMCQMarks:  inst.Snapshot.TotalMarks(models.QuestionKindObjective),
		TotalMarks:     inst.TotalMarks,
	}

	if !inst.Snapshot.HasSubjective() {
		ok, err := s.exams.Finalize(ctx, q, inst.ID, models.ExamStateNoEvaluationNeeded, nil)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize exam")
		}
		if !ok {
			return nil, nil, closedError(appErrors.ErrInvalidStateTransition, inst)
		}
		result.State = models.ExamStateNoEvaluationNeeded
		result.EvaluationStatus = models.EvaluationDisplayNotRequired
		return result, nil, nil
	}

	eval, err := s.scheduler.OnSubmission(ctx, q, inst)
	if err != nil {
		return nil, nil, err
	}
	result.State = models.ExamStateSubmittedMCQ
	result.EvaluationStatus = models.EvaluationDisplayPending
	return result, eval, nil
}

// assignAfterCommit tries the first assignment right away. A failure leaves
// the evaluation pending for the scan loop and is never surfaced to students.
func (s *ExamSessionService) assignAfterCommit(ctx context.Context, eval *models.Evaluation) {
	if eval == nil {
		return
	}
	if _, err := s.scheduler.AssignEvaluation(ctx, eval.ID); err != nil {
		level := s.logger.Warn
		if appErrors.FromError(err).Code != appErrors.ErrAssignmentFailure.Code {
			level = s.logger.Error
		}
		level("immediate evaluation assignment failed", zap.String("evaluation_id", eval.ID), zap.Error(err))
	}
}

// AutoSubmitExpired finalises in-progress attempts whose deadline plus grace
// has passed, using the answers already saved. It returns how many were
// finalised by this call.
func (s *ExamSessionService) AutoSubmitExpired(ctx context.Context) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "exam.auto_submit")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveScan("auto_submit", time.Since(started)) }()

	now := s.now().UTC()
	ids, err := s.exams.ListExpiredIDs(ctx, now.Add(-s.cfg.SubmissionGrace), s.cfg.AutoSubmitBatch)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired exams")
	}

	submitted := 0
	for _, id := range ids {
		var (
			inst *models.ExamInstance
			eval *models.Evaluation
			done bool
		)
		err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
			locked, err := s.exams.TryLock(ctx, q, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return err
			}
			if locked.State != models.ExamStateInProgress || locked.AcceptsAnswersAt(now, s.cfg.SubmissionGrace) {
				return nil
			}
			_, eval, err = s.finalize(ctx, q, locked, now, models.SubmitReasonAutoTimeout)
			if err != nil {
				return err
			}
			inst = locked
			done = true
			return nil
		})
		if err != nil {
			s.logger.Error("auto-submit failed", zap.String("exam_id", id), zap.Error(err))
			continue
		}
		if !done {
			continue
		}
		submitted++
		s.metrics.ExamSubmitted(string(models.SubmitReasonAutoTimeout))
		s.notify(ctx, models.EventExamAutoSubmitted, models.ExamAutoSubmittedData{
			ExamInstanceID: inst.ID,
			StudentID:      inst.StudentID,
			SubmittedAt:    now,
		})
		s.assignAfterCommit(ctx, eval)
	}
	span.SetAttributes(attribute.Int("exam.auto_submitted", submitted))
	if submitted > 0 {
		s.logger.Info("expired exams auto-submitted", zap.Int("count", submitted))
	}
	return submitted, nil
}

// StartAutoSubmit runs AutoSubmitExpired on a ticker until ctx is cancelled.
// Each cycle runs on one replica only.
func (s *ExamSessionService) StartAutoSubmit(ctx context.Context) {
	if s.cfg.AutoSubmitInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.AutoSubmitInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.autoSubmitCycle(ctx)
			}
		}
	}()
}

func (s *ExamSessionService) autoSubmitCycle(ctx context.Context) {
	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx, autoSubmitLease, s.cfg.LeaseTTL)
		if err != nil {
			s.logger.Warn("auto-submit lease unavailable", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer release(context.Background())
	}
	if _, err := s.AutoSubmitExpired(ctx); err != nil {
		s.logger.Error("auto-submit cycle failed", zap.Error(err))
	}
}

// GetStatus reports progress of an attempt to its owner or an admin.
func (s *ExamSessionService) GetStatus(ctx context.Context, instanceID, actorID string, role models.UserRole) (*dto.ExamStatusResponse, error) {
	inst, err := s.loadForActor(ctx, instanceID, actorID, role)
	if err != nil {
		return nil, err
	}
	resp := &dto.ExamStatusResponse{
		ID:             inst.ID,
		State:          inst.State,
		StartedAt:      inst.StartedAt,
		SubmittedAt:    inst.SubmittedAt,
		AutomatedScore: inst.AutomatedScore,
		ManualScore:    inst.ManualScore,
		TotalMarks:     inst.TotalMarks,
	}
	if deadline, err := inst.Deadline(); err == nil {
		resp.Deadline = &deadline
		if inst.State == models.ExamStateInProgress {
			if remaining := deadline.Sub(s.now()); remaining > 0 {
				resp.RemainingSeconds = int64(remaining / time.Second)
			}
		}
	}
	status, err := s.displayStatus(ctx, inst)
	if err != nil {
		return nil, err
	}
	resp.EvaluationStatus = status
	return resp, nil
}

// displayStatus collapses evaluation internals into what a student may see.
// Breaches and assignment failures are never shown.
func (s *ExamSessionService) displayStatus(ctx context.Context, inst *models.ExamInstance) (models.EvaluationDisplayStatus, error) {
	switch inst.State {
	case models.ExamStateCreated, models.ExamStateInProgress:
		return "", nil
	case models.ExamStateNoEvaluationNeeded:
		return models.EvaluationDisplayNotRequired, nil
	case models.ExamStateEvaluated:
		return models.EvaluationDisplayEvaluated, nil
	}
	if s.evaluations == nil {
		return models.EvaluationDisplayPending, nil
	}
	eval, err := s.evaluations.GetByExamInstance(ctx, inst.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EvaluationDisplayPending, nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	if eval.Status == models.EvaluationStatusCompleted {
		return models.EvaluationDisplayEvaluated, nil
	}
	return models.EvaluationDisplayPending, nil
}

// GetSnapshot returns the frozen questions without answer keys, plus the
// answers saved so far.
func (s *ExamSessionService) GetSnapshot(ctx context.Context, instanceID, actorID string, role models.UserRole) (*dto.ExamSessionResponse, error) {
	inst, err := s.loadForActor(ctx, instanceID, actorID, role)
	if err != nil {
		return nil, err
	}
	answers, err := s.ledger.List(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	return s.sessionView(inst, answers, false), nil
}

func (s *ExamSessionService) loadForActor(ctx context.Context, instanceID, actorID string, role models.UserRole) (*models.ExamInstance, error) {
	inst, err := s.exams.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if role != models.RoleAdmin && inst.StudentID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another student")
	}
	return inst, nil
}

func (s *ExamSessionService) sessionView(inst *models.ExamInstance, answers []models.StudentAnswer, resumed bool) *dto.ExamSessionResponse {
	resp := &dto.ExamSessionResponse{
		ID:              inst.ID,
		TemplateID:      inst.TemplateID,
		TemplateVersion: inst.TemplateVersion,
		State:           inst.State,
		StartedAt:       inst.StartedAt,
		DurationMinutes: inst.DurationMinutes,
		TotalMarks:      inst.TotalMarks,
		Questions:       inst.Snapshot.StudentView(),
		Resumed:         resumed,
	}
	if deadline, err := inst.Deadline(); err == nil {
		resp.Deadline = &deadline
	}
	for _, a := range answers {
		resp.Answers = append(resp.Answers, dto.AnswerView{
			QuestionNumber: a.QuestionNumber,
			SelectedOption: a.SelectedOption,
			AnswerSheetKey: a.AnswerSheetKey,
			UpdatedAt:      a.UpdatedAt,
		})
	}
	return resp
}

func (s *ExamSessionService) notify(ctx context.Context, eventType models.EventType, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, eventType, data)
}
