package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/internal/service"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

type evaluationService interface {
	AssignEvaluation(ctx context.Context, evaluationID string) (string, error)
	GetEvaluation(ctx context.Context, evaluationID, actorID string, role models.UserRole) (*dto.EvaluationDetailResponse, error)
	SubmitQuestionMarks(ctx context.Context, evaluationID, teacherID string, req dto.SubmitMarksRequest) ([]models.QuestionMark, error)
	CompleteEvaluation(ctx context.Context, evaluationID, teacherID string) (*models.Evaluation, error)
	ListBreaches(ctx context.Context, since time.Time, limit, offset int) ([]models.BreachRecord, error)
}

type slaReportExporter interface {
	Export(ctx context.Context, query dto.SLAReportQuery) (*service.SLAReport, error)
}

// EvaluationHandler exposes grading and SLA endpoints.
type EvaluationHandler struct {
	evaluations evaluationService
	reports     slaReportExporter
}

// NewEvaluationHandler builds a new handler.
func NewEvaluationHandler(evaluations evaluationService, reports slaReportExporter) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations, reports: reports}
}

// Assign godoc
// @Summary Assign an evaluation to the least-loaded teacher
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id}/assign [post]
func (h *EvaluationHandler) Assign(c *gin.Context) {
	id := c.Param("id")
	teacherID, err := h.evaluations.AssignEvaluation(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AssignEvaluationResponse{EvaluationID: id, TeacherID: teacherID}, nil)
}

// Get godoc
// @Summary Get an evaluation with signed answer-sheet links
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id} [get]
func (h *EvaluationHandler) Get(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.evaluations.GetEvaluation(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// SubmitMarks godoc
// @Summary Record marks for subjective questions
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body dto.SubmitMarksRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id}/marks [put]
func (h *EvaluationHandler) SubmitMarks(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SubmitMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid marks payload"))
		return
	}
	marks, err := h.evaluations.SubmitQuestionMarks(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Complete godoc
// @Summary Complete an evaluation and publish the manual score
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id}/complete [post]
func (h *EvaluationHandler) Complete(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	evaluation, err := h.evaluations.CompleteEvaluation(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// Breaches godoc
// @Summary List SLA breaches flagged since a point in time
// @Tags Evaluations
// @Produce json
// @Param since query string false "RFC3339 timestamp, defaults to 24h ago"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /evaluations/breaches [get]
func (h *EvaluationHandler) Breaches(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "since must be an RFC3339 timestamp"))
			return
		}
		since = parsed
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		response.Error(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.evaluations.ListBreaches(c.Request.Context(), since, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &response.Pagination{Limit: limit, Offset: offset, Count: len(items)})
}

// SLAReport godoc
// @Summary Export SLA compliance as CSV or PDF
// @Tags Evaluations
// @Produce text/csv
// @Produce application/pdf
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /evaluations/sla-report [get]
func (h *EvaluationHandler) SLAReport(c *gin.Context) {
	var query dto.SLAReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report query"))
		return
	}
	report, err := h.reports.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, report.Filename, report.ContentType, report.Body)
}
