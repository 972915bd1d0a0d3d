package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

type examSessionService interface {
	Start(ctx context.Context, req dto.StartExamRequest) (*dto.ExamSessionResponse, error)
	Submit(ctx context.Context, instanceID, studentID string, req dto.SubmitAnswersRequest) (*dto.SubmitResult, error)
	GetStatus(ctx context.Context, instanceID, actorID string, role models.UserRole) (*dto.ExamStatusResponse, error)
	GetSnapshot(ctx context.Context, instanceID, actorID string, role models.UserRole) (*dto.ExamSessionResponse, error)
}

type answerLedgerService interface {
	Record(ctx context.Context, instanceID, studentID string, questionNumber int, req dto.RecordAnswerRequest) (*models.StudentAnswer, error)
	Rescore(ctx context.Context, instanceID string) (*dto.RescoreResponse, error)
}

// ExamHandler exposes the student exam lifecycle.
type ExamHandler struct {
	sessions examSessionService
	answers  answerLedgerService
}

// NewExamHandler builds a new handler.
func NewExamHandler(sessions examSessionService, answers answerLedgerService) *ExamHandler {
	return &ExamHandler{sessions: sessions, answers: answers}
}

// Start godoc
// @Summary Start or resume an exam attempt
// @Description A repeated attempt_key returns the existing attempt without consuming quota.
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body dto.StartExamRequest true "Start payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Start(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.StartExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exam payload"))
		return
	}
	req.StudentID = claims.UserID
	session, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if session.Resumed {
		response.JSON(c, http.StatusOK, session, nil)
		return
	}
	response.Created(c, session)
}

// Snapshot godoc
// @Summary Get the frozen question set of an attempt
// @Tags Exams
// @Produce json
// @Param id path string true "Exam instance ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Snapshot(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := h.sessions.GetSnapshot(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Status godoc
// @Summary Poll exam status
// @Tags Exams
// @Produce json
// @Param id path string true "Exam instance ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/status [get]
func (h *ExamHandler) Status(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.sessions.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// RecordAnswer godoc
// @Summary Autosave one answer
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam instance ID"
// @Param number path int true "Question number"
// @Param payload body dto.RecordAnswerRequest true "Answer payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/answers/{number} [put]
func (h *ExamHandler) RecordAnswer(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "question number must be a positive integer"))
		return
	}
	var req dto.RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid answer payload"))
		return
	}
	answer, err := h.answers.Record(c.Request.Context(), c.Param("id"), claims.UserID, number, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, answer, nil)
}

// Submit godoc
// @Summary Submit an exam attempt
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam instance ID"
// @Param payload body dto.SubmitAnswersRequest false "Final answers"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/submit [post]
func (h *ExamHandler) Submit(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SubmitAnswersRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submit payload"))
			return
		}
	}
	result, err := h.sessions.Submit(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rescore godoc
// @Summary Recompute the automated score of a submitted attempt
// @Tags Exams
// @Produce json
// @Param id path string true "Exam instance ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/rescore [post]
func (h *ExamHandler) Rescore(c *gin.Context) {
	result, err := h.answers.Rescore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
