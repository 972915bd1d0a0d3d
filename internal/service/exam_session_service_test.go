package service

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

type templateStub struct {
	templates map[string]*models.ExamTemplate
}

func (t *templateStub) GetLatestPublished(ctx context.Context, id string) (*models.ExamTemplate, error) {
	if tpl, ok := t.templates[id]; ok {
		return tpl, nil
	}
	return nil, sql.ErrNoRows
}

type questionBankStub struct {
	questions []models.Question
}

func (b *questionBankStub) ListCandidates(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error) {
	var out []models.Question
	for _, q := range b.questions {
		if q.Kind != filter.Kind {
			continue
		}
		if filter.Difficulty != nil && q.Difficulty != *filter.Difficulty {
			continue
		}
		if len(filter.Units) > 0 && !contains(filter.Units, q.Unit) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type schedulerStub struct {
	created   []string
	assigned  []string
	assignErr error
}

func (s *schedulerStub) OnSubmission(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (*models.Evaluation, error) {
	s.created = append(s.created, inst.ID)
	return &models.Evaluation{ID: "eval-" + inst.ID, ExamInstanceID: inst.ID, Status: models.EvaluationStatusPending}, nil
}

func (s *schedulerStub) AssignEvaluation(ctx context.Context, evaluationID string) (string, error) {
	s.assigned = append(s.assigned, evaluationID)
	if s.assignErr != nil {
		return "", s.assignErr
	}
	return "teacher-1", nil
}

type evaluationLookupStub struct {
	byExam map[string]*models.Evaluation
}

func (e *evaluationLookupStub) GetByExamInstance(ctx context.Context, instanceID string) (*models.Evaluation, error) {
	if eval, ok := e.byExam[instanceID]; ok {
		return eval, nil
	}
	return nil, sql.ErrNoRows
}

func bankQuestions() []models.Question {
	var out []models.Question
	for i, unit := range []string{"algebra", "algebra", "geometry", "geometry"} {
		level := models.DifficultyEasy
		if i%2 == 1 {
			level = models.DifficultyHard
		}
		out = append(out, models.Question{
			ID:            "obj-" + string(rune('a'+i)),
			Kind:          models.QuestionKindObjective,
			Text:          "objective",
			Options:       models.Options{{Key: "A", Text: "yes"}, {Key: "B", Text: "no"}},
			CorrectOption: ptr("A"),
			Marks:         1,
			Unit:          unit,
			Difficulty:    level,
		})
	}
	out = append(out, models.Question{
		ID:         "sub-a",
		Kind:       models.QuestionKindSubjective,
		Text:       "essay",
		Marks:      10,
		Unit:       "algebra",
		Difficulty: models.DifficultyMedium,
		MaxWords:   ptr(300),
		Rubric:     ptr("structure and accuracy"),
	})
	return out
}

type sessionFixture struct {
	svc       *ExamSessionService
	exams     *examStoreStub
	answers   *answerStoreStub
	subs      *subscriptionStoreStub
	scheduler *schedulerStub
	evals     *evaluationLookupStub
	notifier  *notifierStub
	now       time.Time
}

func newSessionFixture(t *testing.T, instances ...*models.ExamInstance) *sessionFixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	exams := newExamStoreStub(instances...)
	answers := newAnswerStoreStub()
	tx := &txStub{}

	ledger := NewAnswerLedgerService(answers, exams, tx, DefaultSubmissionGrace, nil, nil)
	ledger.now = fixedClock(now)
	entitlement, subs := newEntitlementFixture(2)

	f := &sessionFixture{
		exams:     exams,
		answers:   answers,
		subs:      subs,
		scheduler: &schedulerStub{},
		evals:     &evaluationLookupStub{byExam: map[string]*models.Evaluation{}},
		notifier:  &notifierStub{},
		now:       now,
	}
	f.svc = NewExamSessionService(ExamSessionDeps{
		Templates: &templateStub{templates: map[string]*models.ExamTemplate{
			"tpl-obj": {ID: "tpl-obj", Version: 3, DurationMinutes: 45, SLAHours: 24,
				Rules: models.SectionRules{{Kind: models.QuestionKindObjective, Count: 2}}},
			"tpl-mixed": {ID: "tpl-mixed", Version: 1, DurationMinutes: 90, SLAHours: 48,
				Rules: models.SectionRules{
					{Kind: models.QuestionKindObjective, Count: 2, DifficultyMix: map[models.Difficulty]int{models.DifficultyEasy: 1, models.DifficultyHard: 1}},
					{Kind: models.QuestionKindSubjective, Count: 1, Marks: 8},
				}},
			"tpl-big": {ID: "tpl-big", Version: 1, DurationMinutes: 30, SLAHours: 24,
				Rules: models.SectionRules{{Kind: models.QuestionKindObjective, Count: 9}}},
			"tpl-bad-sla": {ID: "tpl-bad-sla", Version: 1, DurationMinutes: 30, SLAHours: 36,
				Rules: models.SectionRules{{Kind: models.QuestionKindSubjective, Count: 1}}},
			"tpl-essay": {ID: "tpl-essay", Version: 2, DurationMinutes: 30, SLAHours: 24, TotalMarks: 8,
				Rules: models.SectionRules{{Kind: models.QuestionKindSubjective, Count: 1, Marks: 8}}},
			"tpl-essay-drift": {ID: "tpl-essay-drift", Version: 1, DurationMinutes: 30, SLAHours: 24, TotalMarks: 10,
				Rules: models.SectionRules{{Kind: models.QuestionKindSubjective, Count: 1, Marks: 8}}},
		}},
		Questions:   &questionBankStub{questions: bankQuestions()},
		Exams:       exams,
		Ledger:      ledger,
		Entitlement: entitlement,
		Scheduler:   f.scheduler,
		Evaluations: f.evals,
		Notifier:    f.notifier,
		Lease:       &leaseStub{granted: true},
		Tx:          tx,
	}, ExamSessionConfig{SubmissionGrace: DefaultSubmissionGrace}, nil, nil, nil)
	f.svc.now = fixedClock(now)
	f.svc.rng = rand.New(rand.NewSource(7))
	entitlement.now = fixedClock(now)
	return f
}

func TestExamSessionStartFreezesSnapshot(t *testing.T) {
	f := newSessionFixture(t)

	resp, err := f.svc.Start(context.Background(), dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-mixed", AttemptKey: "try-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStateInProgress, resp.State)
	assert.False(t, resp.Resumed)
	require.NotNil(t, resp.Deadline)
	assert.Equal(t, f.now.Add(90*time.Minute), *resp.Deadline)
	require.Len(t, resp.Questions, 3)
	assert.Equal(t, 10.0, resp.TotalMarks)

	seen := map[string]bool{}
	for i, q := range resp.Questions {
		assert.Equal(t, i+1, q.Number)
		assert.False(t, seen[q.QuestionID], "duplicate question %s", q.QuestionID)
		seen[q.QuestionID] = true
		if q.Objective != nil {
			assert.Empty(t, q.Objective.CorrectOption)
		}
		if q.Subjective != nil {
			assert.Empty(t, q.Subjective.Rubric)
			assert.Equal(t, 8.0, q.Marks)
		}
	}

	stored := f.exams.get(resp.ID)
	require.NotNil(t, stored)
	require.NoError(t, stored.Snapshot.Validate())
	assert.Equal(t, "A", stored.Snapshot[0].Objective.CorrectOption)
	assert.Equal(t, "structure and accuracy", stored.Snapshot[2].Subjective.Rubric)
	assert.Equal(t, 1, f.subs.usage["stu-1|2026-03"])
}

func TestExamSessionStartIsIdempotentPerAttemptKey(t *testing.T) {
	f := newSessionFixture(t)
	req := dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-obj", AttemptKey: "try-1"}

	first, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Resumed)
	assert.Equal(t, 1, f.subs.usage["stu-1|2026-03"])
}

func TestExamSessionStartQuotaBoundary(t *testing.T) {
	f := newSessionFixture(t)
	f.subs.usage = map[string]int{"stu-1|2026-03": 2}

	_, err := f.svc.Start(context.Background(), dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-obj"})
	require.ErrorIs(t, err, appErrors.ErrQuotaExceeded)

	_, err = f.svc.Start(context.Background(), dto.StartExamRequest{StudentID: "stu-2", TemplateID: "tpl-obj"})
	require.ErrorIs(t, err, appErrors.ErrNoActiveSubscription)
}

func TestExamSessionStartPreconditions(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-missing"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Start(ctx, dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-big"})
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.svc.Start(ctx, dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-bad-sla"})
	require.ErrorIs(t, err, appErrors.ErrInvalidSLAClass)

	_, err = f.svc.Start(ctx, dto.StartExamRequest{TemplateID: "tpl-obj"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.subs.usage)
}

func TestExamSessionStartChecksPublishedTotal(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-essay-drift"})
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	assert.Equal(t, 10.0, appErrors.FromError(err).Details["published"])
	assert.Empty(t, f.subs.usage)

	resp, err := f.svc.Start(ctx, dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-essay"})
	require.NoError(t, err)
	assert.Equal(t, 8.0, resp.TotalMarks)
}

func TestExamSessionStartSelectedUnits(t *testing.T) {
	f := newSessionFixture(t)

	resp, err := f.svc.Start(context.Background(), dto.StartExamRequest{StudentID: "stu-1", TemplateID: "tpl-obj", SelectedUnits: []string{"geometry"}})
	require.NoError(t, err)
	for _, q := range resp.Questions {
		assert.Equal(t, "geometry", q.Unit)
	}
}

func TestRuleUnits(t *testing.T) {
	rule := models.SectionRule{Units: []string{"algebra", "geometry"}}

	units, err := ruleUnits(rule, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"algebra", "geometry"}, units)

	units, err = ruleUnits(rule, []string{"geometry", "calculus"})
	require.NoError(t, err)
	assert.Equal(t, []string{"geometry"}, units)

	units, err = ruleUnits(models.SectionRule{}, []string{"calculus"})
	require.NoError(t, err)
	assert.Equal(t, []string{"calculus"}, units)

	_, err = ruleUnits(rule, []string{"calculus"})
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestExamSessionSubmitObjectiveOnly(t *testing.T) {
	snapshot := mixedSnapshot()[:2]
	f := newSessionFixture(t, inProgressExam("exam-1", snapshot, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)))

	result, err := f.svc.Submit(context.Background(), "exam-1", "stu-1", dto.SubmitAnswersRequest{Answers: []models.AnswerInput{
		{QuestionNumber: 1, SelectedOption: ptr("B")},
		{QuestionNumber: 2, SelectedOption: ptr("B")},
	}})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStateNoEvaluationNeeded, result.State)
	assert.Equal(t, models.EvaluationDisplayNotRequired, result.EvaluationStatus)
	assert.Equal(t, 2.0, result.AutomatedScore)
	assert.Equal(t, 4.0, result.TotalMCQMarks)
	assert.Empty(t, f.scheduler.created)

	stored := f.exams.get("exam-1")
	assert.Equal(t, models.ExamStateNoEvaluationNeeded, stored.State)
	assert.Equal(t, models.SubmitReasonManual, *stored.SubmitReason)
}

func TestExamSessionSubmitWithSubjectiveCreatesEvaluation(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)))
	f.scheduler.assignErr = appErrors.ErrAssignmentFailure

	result, err := f.svc.Submit(context.Background(), "exam-1", "stu-1", dto.SubmitAnswersRequest{Answers: []models.AnswerInput{
		{QuestionNumber: 1, SelectedOption: ptr("B")},
		{QuestionNumber: 3, AnswerSheetKey: ptr("sheets/exam-1/3.png")},
	}})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStateSubmittedMCQ, result.State)
	assert.Equal(t, models.EvaluationDisplayPending, result.EvaluationStatus)
	assert.Equal(t, []string{"exam-1"}, f.scheduler.created)
	assert.Equal(t, []string{"eval-exam-1"}, f.scheduler.assigned)
	assert.Len(t, f.answers.answers["exam-1"], 2)
}

func TestExamSessionSubmitAfterDeadline(t *testing.T) {
	started := time.Date(2026, 3, 10, 7, 50, 0, 0, time.UTC)
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), started))

	_, err := f.svc.Submit(context.Background(), "exam-1", "stu-1", dto.SubmitAnswersRequest{})
	require.ErrorIs(t, err, appErrors.ErrInvalidStateTransition)
	appErr := appErrors.FromError(err)
	assert.Equal(t, models.ExamStateInProgress, appErr.Details["current_state"])
	assert.Equal(t, "2026-03-10T08:50:00Z", appErr.Details["deadline"])
	assert.Equal(t, models.ExamStateInProgress, f.exams.get("exam-1").State)
}

func TestExamSessionStateOnlyMovesForward(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot()[:2], time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)))
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "exam-1", "stu-1", dto.SubmitAnswersRequest{})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "exam-1", "stu-1", dto.SubmitAnswersRequest{})
	require.ErrorIs(t, err, appErrors.ErrInvalidStateTransition)

	ok, err := f.exams.MarkStarted(ctx, nil, "exam-1", f.now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.ExamStateNoEvaluationNeeded, f.exams.get("exam-1").State)
}

func TestExamSessionSubmitOwnership(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)))

	_, err := f.svc.Submit(context.Background(), "exam-1", "stu-9", dto.SubmitAnswersRequest{})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = f.svc.Submit(context.Background(), "exam-x", "stu-1", dto.SubmitAnswersRequest{})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExamSessionAutoSubmitExpired(t *testing.T) {
	expired := inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 7, 50, 0, 0, time.UTC))
	inGrace := inProgressExam("exam-2", mixedSnapshot(), time.Date(2026, 3, 10, 7, 57, 0, 0, time.UTC))
	running := inProgressExam("exam-3", mixedSnapshot(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	f := newSessionFixture(t, expired, inGrace, running)
	ctx := context.Background()
	require.NoError(t, f.answers.Upsert(ctx, nil, &models.StudentAnswer{ExamInstanceID: "exam-1", QuestionNumber: 1, SelectedOption: ptr("B")}))

	count, err := f.svc.AutoSubmitExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored := f.exams.get("exam-1")
	assert.Equal(t, models.ExamStateSubmittedMCQ, stored.State)
	assert.Equal(t, models.SubmitReasonAutoTimeout, *stored.SubmitReason)
	assert.Equal(t, 2.0, *stored.AutomatedScore)
	assert.Equal(t, models.ExamStateInProgress, f.exams.get("exam-2").State)
	assert.Equal(t, models.ExamStateInProgress, f.exams.get("exam-3").State)
	assert.Equal(t, 1, f.notifier.count(models.EventExamAutoSubmitted))
	assert.Equal(t, []string{"eval-exam-1"}, f.scheduler.assigned)

	count, err = f.svc.AutoSubmitExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExamSessionAutoSubmitSkipsLockedRows(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)))
	f.exams.locked["exam-1"] = true

	count, err := f.svc.AutoSubmitExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, models.ExamStateInProgress, f.exams.get("exam-1").State)
}

func TestExamSessionGetStatus(t *testing.T) {
	f := newSessionFixture(t,
		inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)),
	)
	ctx := context.Background()

	status, err := f.svc.GetStatus(ctx, "exam-1", "stu-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, int64(30*60), status.RemainingSeconds)
	assert.Empty(t, status.EvaluationStatus)

	_, err = f.svc.GetStatus(ctx, "exam-1", "stu-2", models.RoleStudent)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Submit(ctx, "exam-1", "stu-1", dto.SubmitAnswersRequest{})
	require.NoError(t, err)
	f.evals.byExam["exam-1"] = &models.Evaluation{ID: "eval-exam-1", Status: models.EvaluationStatusBreached}

	status, err = f.svc.GetStatus(ctx, "exam-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationDisplayPending, status.EvaluationStatus)
	assert.Zero(t, status.RemainingSeconds)

	f.evals.byExam["exam-1"].Status = models.EvaluationStatusCompleted
	status, err = f.svc.GetStatus(ctx, "exam-1", "stu-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationDisplayEvaluated, status.EvaluationStatus)
}

func TestExamSessionGetSnapshotHidesKeys(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)))
	require.NoError(t, f.answers.Upsert(context.Background(), nil, &models.StudentAnswer{ExamInstanceID: "exam-1", QuestionNumber: 2, SelectedOption: ptr("A")}))

	resp, err := f.svc.GetSnapshot(context.Background(), "exam-1", "stu-1", models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, resp.Questions, 3)
	assert.Empty(t, resp.Questions[0].Objective.CorrectOption)
	assert.Empty(t, resp.Questions[2].Subjective.Rubric)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, 2, resp.Answers[0].QuestionNumber)
}

func TestExamSessionAutoSubmitCycleHonoursLease(t *testing.T) {
	f := newSessionFixture(t, inProgressExam("exam-1", mixedSnapshot(), time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)))
	lease := &leaseStub{granted: false}
	f.svc.lease = lease

	f.svc.autoSubmitCycle(context.Background())
	assert.Equal(t, models.ExamStateInProgress, f.exams.get("exam-1").State)

	lease.granted = true
	f.svc.autoSubmitCycle(context.Background())
	assert.Equal(t, models.ExamStateSubmittedMCQ, f.exams.get("exam-1").State)
	assert.Equal(t, 1, lease.released)
}
