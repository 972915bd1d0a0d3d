package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

type txStub struct {
	mu    sync.Mutex
	calls int
}

func (t *txStub) WithTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return fn(nil)
}

type leaseStub struct {
	granted  bool
	released int
}

func (l *leaseStub) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), bool, error) {
	if !l.granted {
		return nil, false, nil
	}
	return func(context.Context) { l.released++ }, true, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *notifierStub) Notify(ctx context.Context, eventType models.EventType, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, models.Event{Type: eventType, Data: data})
}

func (n *notifierStub) count(eventType models.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.Type == eventType {
			total++
		}
	}
	return total
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T {
	return &v
}

// examStoreStub mirrors the conditional updates of the exam repository.
type examStoreStub struct {
	mu        sync.Mutex
	instances map[string]*models.ExamInstance
	locked    map[string]bool
}

func newExamStoreStub(instances ...*models.ExamInstance) *examStoreStub {
	s := &examStoreStub{instances: map[string]*models.ExamInstance{}, locked: map[string]bool{}}
	for _, inst := range instances {
		s.instances[inst.ID] = inst
	}
	return s
}

func (s *examStoreStub) get(id string) *models.ExamInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[id]
	if inst == nil {
		return nil
	}
	cp := *inst
	return &cp
}

func (s *examStoreStub) Create(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.instances {
		if existing.StudentID == inst.StudentID && existing.AttemptKey == inst.AttemptKey {
			return false, nil
		}
	}
	if inst.ID == "" {
		inst.ID = "exam-" + strconv.Itoa(len(s.instances)+1)
	}
	inst.State = models.ExamStateCreated
	cp := *inst
	s.instances[inst.ID] = &cp
	return true, nil
}

func (s *examStoreStub) GetByID(ctx context.Context, id string) (*models.ExamInstance, error) {
	if inst := s.get(id); inst != nil {
		return inst, nil
	}
	return nil, sql.ErrNoRows
}

func (s *examStoreStub) GetByAttemptKey(ctx context.Context, q sqlx.ExtContext, studentID, attemptKey string) (*models.ExamInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.StudentID == studentID && inst.AttemptKey == attemptKey {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *examStoreStub) Lock(ctx context.Context, q sqlx.ExtContext, id string, shared bool) (*models.ExamInstance, error) {
	return s.GetByID(ctx, id)
}

func (s *examStoreStub) TryLock(ctx context.Context, q sqlx.ExtContext, id string) (*models.ExamInstance, error) {
	s.mu.Lock()
	held := s.locked[id]
	s.mu.Unlock()
	if held {
		return nil, sql.ErrNoRows
	}
	return s.GetByID(ctx, id)
}

func (s *examStoreStub) transition(id string, from models.ExamState, apply func(*models.ExamInstance)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[id]
	if inst == nil || inst.State != from {
		return false
	}
	apply(inst)
	return true
}

func (s *examStoreStub) MarkStarted(ctx context.Context, q sqlx.ExtContext, id string, startedAt time.Time) (bool, error) {
	return s.transition(id, models.ExamStateCreated, func(inst *models.ExamInstance) {
		inst.State = models.ExamStateInProgress
		inst.StartedAt = &startedAt
	}), nil
}

func (s *examStoreStub) MarkSubmitted(ctx context.Context, q sqlx.ExtContext, id string, submittedAt time.Time, reason models.SubmitReason, score float64) (bool, error) {
	return s.transition(id, models.ExamStateInProgress, func(inst *models.ExamInstance) {
		inst.State = models.ExamStateSubmittedMCQ
		inst.SubmittedAt = &submittedAt
		inst.SubmitReason = &reason
		inst.AutomatedScore = &score
	}), nil
}

func (s *examStoreStub) Finalize(ctx context.Context, q sqlx.ExtContext, id string, to models.ExamState, manual *float64) (bool, error) {
	if !models.ExamStateSubmittedMCQ.CanTransition(to) {
		return false, errors.New("invalid target state")
	}
	return s.transition(id, models.ExamStateSubmittedMCQ, func(inst *models.ExamInstance) {
		inst.State = to
		inst.ManualScore = manual
	}), nil
}

func (s *examStoreStub) UpdateAutomatedScore(ctx context.Context, q sqlx.ExtContext, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst := s.instances[id]; inst != nil && inst.SubmittedAt != nil {
		inst.AutomatedScore = &score
	}
	return nil
}

func (s *examStoreStub) ListExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, inst := range s.instances {
		if inst.State != models.ExamStateInProgress || inst.StartedAt == nil {
			continue
		}
		deadline := inst.StartedAt.Add(time.Duration(inst.DurationMinutes) * time.Minute)
		if deadline.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type answerStoreStub struct {
	mu      sync.Mutex
	answers map[string]map[int]models.StudentAnswer
	marks   map[string][]models.AnswerMark
}

func newAnswerStoreStub() *answerStoreStub {
	return &answerStoreStub{answers: map[string]map[int]models.StudentAnswer{}, marks: map[string][]models.AnswerMark{}}
}

func (s *answerStoreStub) Upsert(ctx context.Context, q sqlx.ExtContext, answer *models.StudentAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers[answer.ExamInstanceID] == nil {
		s.answers[answer.ExamInstanceID] = map[int]models.StudentAnswer{}
	}
	s.answers[answer.ExamInstanceID][answer.QuestionNumber] = *answer
	return nil
}

func (s *answerStoreStub) ListByInstance(ctx context.Context, q sqlx.ExtContext, instanceID string) ([]models.StudentAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StudentAnswer
	for _, a := range s.answers[instanceID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (s *answerStoreStub) SaveMarks(ctx context.Context, q sqlx.ExtContext, instanceID string, marks []models.AnswerMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[instanceID] = marks
	return nil
}

// mixedSnapshot has two objective questions worth 2 marks each and one
// subjective question worth 6.
func mixedSnapshot() models.Snapshot {
	return models.Snapshot{
		{Number: 1, QuestionID: "q-1", Kind: models.QuestionKindObjective, Text: "2+2", Marks: 2,
			Objective: &models.ObjectivePayload{Options: models.Options{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}}, CorrectOption: "B"}},
		{Number: 2, QuestionID: "q-2", Kind: models.QuestionKindObjective, Text: "3+3", Marks: 2,
			Objective: &models.ObjectivePayload{Options: models.Options{{Key: "A", Text: "6"}, {Key: "B", Text: "7"}}, CorrectOption: "A"}},
		{Number: 3, QuestionID: "q-3", Kind: models.QuestionKindSubjective, Text: "Explain", Marks: 6,
			Subjective: &models.SubjectivePayload{MaxWords: 200, Rubric: "mention carry"}},
	}
}

func inProgressExam(id string, snapshot models.Snapshot, startedAt time.Time) *models.ExamInstance {
	return &models.ExamInstance{
		ID:              id,
		StudentID:       "stu-1",
		TemplateID:      "tpl-1",
		TemplateVersion: 1,
		AttemptKey:      "key-" + id,
		Snapshot:        snapshot,
		State:           models.ExamStateInProgress,
		StartedAt:       &startedAt,
		DurationMinutes: 60,
		TotalMarks:      snapshot.TotalMarks(),
		SLAHours:        24,
	}
}
