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
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

type answerStore interface {
	Upsert(ctx context.Context, q sqlx.ExtContext, answer *models.StudentAnswer) error
	ListByInstance(ctx context.Context, q sqlx.ExtContext, instanceID string) ([]models.StudentAnswer, error)
	SaveMarks(ctx context.Context, q sqlx.ExtContext, instanceID string, marks []models.AnswerMark) error
}

type examLocker interface {
	Lock(ctx context.Context, q sqlx.ExtContext, id string, shared bool) (*models.ExamInstance, error)
	UpdateAutomatedScore(ctx context.Context, q sqlx.ExtContext, id string, score float64) error
}

// AnswerLedgerService stores student answers and scores objective questions.
type AnswerLedgerService struct {
	answers  answerStore
	exams    examLocker
	tx       transactor
	grace    time.Duration
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnswerLedgerService constructs the ledger. grace extends the time budget
// for in-flight writes.
func NewAnswerLedgerService(answers answerStore, exams examLocker, tx transactor, grace time.Duration, validate *validator.Validate, logger *zap.Logger) *AnswerLedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace < 0 {
		grace = DefaultSubmissionGrace
	}
	return &AnswerLedgerService{answers: answers, exams: exams, tx: tx, grace: grace, validate: validate, logger: logger, now: time.Now}
}

// Record autosaves one answer. Later writes for the same question replace
// earlier ones until the attempt closes.
func (s *AnswerLedgerService) Record(ctx context.Context, instanceID, studentID string, questionNumber int, req dto.RecordAnswerRequest) (*models.StudentAnswer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid answer payload")
	}
	answer := &models.StudentAnswer{
		ExamInstanceID: instanceID,
		QuestionNumber: questionNumber,
		SelectedOption: req.SelectedOption,
		AnswerSheetKey: req.AnswerSheetKey,
	}
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		inst, err := s.exams.Lock(ctx, q, instanceID, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
		}
		if inst.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "exam belongs to another student")
		}
		if !inst.AcceptsAnswersAt(s.now(), s.grace) {
			return closedError(appErrors.ErrAnswerAfterSubmission, inst)
		}
		return s.recordOne(ctx, q, inst, answer)
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// RecordAll writes a batch of answers inside the caller's transaction. The
// caller has already checked that inst accepts answers.
func (s *AnswerLedgerService) RecordAll(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance, inputs []models.AnswerInput) error {
	seen := make(map[int]struct{}, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.QuestionNumber]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d answered twice", in.QuestionNumber))
		}
		seen[in.QuestionNumber] = struct{}{}
		answer := &models.StudentAnswer{
			ExamInstanceID: inst.ID,
			QuestionNumber: in.QuestionNumber,
			SelectedOption: in.SelectedOption,
			AnswerSheetKey: in.AnswerSheetKey,
		}
		if err := s.recordOne(ctx, q, inst, answer); err != nil {
			return err
		}
	}
	return nil
}

func (s *AnswerLedgerService) recordOne(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance, answer *models.StudentAnswer) error {
	question, ok := inst.Snapshot.Question(answer.QuestionNumber)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d is not part of this exam", answer.QuestionNumber))
	}
	switch question.Kind {
	case models.QuestionKindObjective:
		if answer.AnswerSheetKey != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d takes a selected option", question.Number))
		}
		if answer.SelectedOption != nil && !question.Objective.Options.Has(*answer.SelectedOption) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("option %q is not valid for question %d", *answer.SelectedOption, question.Number))
		}
	case models.QuestionKindSubjective:
		if answer.SelectedOption != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d takes an answer sheet", question.Number))
		}
	}
	answer.MarksPossible = question.Marks
	if err := s.answers.Upsert(ctx, q, answer); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save answer")
	}
	return nil
}

// ScoreSnapshot awards full marks for each objective answer matching the
// correct option. It is pure so scoring can be re-run at any time.
func ScoreSnapshot(snapshot models.Snapshot, answers []models.StudentAnswer) (float64, []models.AnswerMark) {
	byNumber := make(map[int]models.StudentAnswer, len(answers))
	for _, a := range answers {
		byNumber[a.QuestionNumber] = a
	}
	var (
		total float64
		marks []models.AnswerMark
	)
	for _, q := range snapshot {
		if q.Kind != models.QuestionKindObjective || q.Objective == nil {
			continue
		}
		a, ok := byNumber[q.Number]
		if !ok {
			continue
		}
		mark := models.AnswerMark{QuestionNumber: q.Number, MarksPossible: q.Marks}
		if a.SelectedOption != nil && *a.SelectedOption == q.Objective.CorrectOption {
			mark.MarksAwarded = q.Marks
			total += q.Marks
		}
		marks = append(marks, mark)
	}
	return total, marks
}

// Score computes the automated score from persisted answers and stores the
// per-answer marks.
func (s *AnswerLedgerService) Score(ctx context.Context, q sqlx.ExtContext, inst *models.ExamInstance) (float64, error) {
	answers, err := s.answers.ListByInstance(ctx, q, inst.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	total, marks := ScoreSnapshot(inst.Snapshot, answers)
	if len(marks) > 0 {
		if err := s.answers.SaveMarks(ctx, q, inst.ID, marks); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save answer marks")
		}
	}
	return total, nil
}

// Rescore recomputes the automated score of a submitted attempt.
func (s *AnswerLedgerService) Rescore(ctx context.Context, instanceID string) (*dto.RescoreResponse, error) {
	var resp *dto.RescoreResponse
	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		inst, err := s.exams.Lock(ctx, q, instanceID, false)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
		}
		if inst.SubmittedAt == nil {
			return appErrors.WithDetails(appErrors.ErrInvalidStateTransition, "exam has not been submitted", map[string]interface{}{
				"current_state": inst.State,
			})
		}
		score, err := s.Score(ctx, q, inst)
		if err != nil {
			return err
		}
		var previous float64
		if inst.AutomatedScore != nil {
			previous = *inst.AutomatedScore
		}
		if score != previous {
			if err := s.exams.UpdateAutomatedScore(ctx, q, inst.ID, score); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update automated score")
			}
			s.logger.Warn("automated score changed on rescore", zap.String("exam_id", inst.ID), zap.Float64("previous", previous), zap.Float64("score", score))
		}
		resp = &dto.RescoreResponse{ExamInstanceID: inst.ID, PreviousScore: previous, AutomatedScore: score, Changed: score != previous}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// List returns the saved answers of an attempt.
func (s *AnswerLedgerService) List(ctx context.Context, instanceID string) ([]models.StudentAnswer, error) {
	answers, err := s.answers.ListByInstance(ctx, nil, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	return answers, nil
}

// closedError reports why an attempt no longer takes writes.
func closedError(base *appErrors.Error, inst *models.ExamInstance) *appErrors.Error {
	details := map[string]interface{}{"current_state": inst.State}
	if deadline, err := inst.Deadline(); err == nil {
		details["deadline"] = deadline.UTC().Format(time.RFC3339)
	}
	return appErrors.WithDetails(base, "", details)
}
