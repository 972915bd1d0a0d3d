package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/middleware"
	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/internal/service"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

type evaluationServiceMock struct {
	assignTeacher string
	assignErr     error
	marksErr      error
	breaches      []models.BreachRecord

	lastTeacherID string
	lastMarks     dto.SubmitMarksRequest
	lastSince     time.Time
	lastLimit     int
	lastOffset    int
}

func (m *evaluationServiceMock) AssignEvaluation(ctx context.Context, evaluationID string) (string, error) {
	return m.assignTeacher, m.assignErr
}

func (m *evaluationServiceMock) GetEvaluation(ctx context.Context, evaluationID, actorID string, role models.UserRole) (*dto.EvaluationDetailResponse, error) {
	return &dto.EvaluationDetailResponse{Evaluation: models.Evaluation{ID: evaluationID}}, nil
}

func (m *evaluationServiceMock) SubmitQuestionMarks(ctx context.Context, evaluationID, teacherID string, req dto.SubmitMarksRequest) ([]models.QuestionMark, error) {
	m.lastTeacherID = teacherID
	m.lastMarks = req
	if m.marksErr != nil {
		return nil, m.marksErr
	}
	return []models.QuestionMark{{EvaluationID: evaluationID, QuestionNumber: req.Marks[0].QuestionNumber, MarksAwarded: req.Marks[0].MarksAwarded}}, nil
}

func (m *evaluationServiceMock) CompleteEvaluation(ctx context.Context, evaluationID, teacherID string) (*models.Evaluation, error) {
	m.lastTeacherID = teacherID
	return &models.Evaluation{ID: evaluationID, Status: models.EvaluationStatusCompleted}, nil
}

func (m *evaluationServiceMock) ListBreaches(ctx context.Context, since time.Time, limit, offset int) ([]models.BreachRecord, error) {
	m.lastSince = since
	m.lastLimit = limit
	m.lastOffset = offset
	return m.breaches, nil
}

type slaReportExporterMock struct {
	lastQuery dto.SLAReportQuery
	err       error
}

func (m *slaReportExporterMock) Export(ctx context.Context, query dto.SLAReportQuery) (*service.SLAReport, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return &service.SLAReport{Filename: "sla-report-2026-03-01-2026-03-31.csv", ContentType: "text/csv", Body: []byte("evaluation_id\n")}, nil
}

func newTeacherContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := newStudentContext(method, target, []byte(body))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher})
	return c, w
}

func TestEvaluationHandlerAssign(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEvaluationHandler(&evaluationServiceMock{assignTeacher: "t-2"}, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodPost, "/evaluations/ev-1/assign", "")
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	handler.Assign(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.AssignEvaluationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ev-1", body.Data.EvaluationID)
	assert.Equal(t, "t-2", body.Data.TeacherID)
}

func TestEvaluationHandlerAssignNoTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEvaluationHandler(&evaluationServiceMock{assignErr: appErrors.ErrAssignmentFailure}, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodPost, "/evaluations/ev-1/assign", "")
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	handler.Assign(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	code, _ := decodeErrorCode(t, w)
	assert.Equal(t, "ASSIGNMENT_FAILURE", code)
}

func TestEvaluationHandlerSubmitMarks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &evaluationServiceMock{}
	handler := NewEvaluationHandler(svc, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodPut, "/evaluations/ev-1/marks", `{"marks":[{"question_number":3,"marks_awarded":4.5}]}`)
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	handler.SubmitMarks(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", svc.lastTeacherID)
	require.Len(t, svc.lastMarks.Marks, 1)
	assert.Equal(t, 4.5, svc.lastMarks.Marks[0].MarksAwarded)
}

func TestEvaluationHandlerSubmitMarksInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEvaluationHandler(&evaluationServiceMock{}, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodPut, "/evaluations/ev-1/marks", `{"marks":`)
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	handler.SubmitMarks(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluationHandlerComplete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &evaluationServiceMock{}
	handler := NewEvaluationHandler(svc, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodPost, "/evaluations/ev-1/complete", "")
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	handler.Complete(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", svc.lastTeacherID)
}

func TestEvaluationHandlerBreaches(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &evaluationServiceMock{breaches: []models.BreachRecord{{EvaluationID: "ev-1"}}}
	handler := NewEvaluationHandler(svc, &slaReportExporterMock{})

	c, w := newTeacherContext(http.MethodGet, "/evaluations/breaches?since=2026-03-01T00:00:00Z&limit=20&offset=40", "")
	handler.Breaches(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), svc.lastSince.UTC())
	assert.Equal(t, 20, svc.lastLimit)
	assert.Equal(t, 40, svc.lastOffset)

	var body struct {
		Pagination struct {
			Count int `json:"count"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Pagination.Count)
}

func TestEvaluationHandlerBreachesRejectsBadQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEvaluationHandler(&evaluationServiceMock{}, &slaReportExporterMock{})

	for _, target := range []string{"/evaluations/breaches?since=yesterday", "/evaluations/breaches?limit=-1"} {
		c, w := newTeacherContext(http.MethodGet, target, "")
		handler.Breaches(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestEvaluationHandlerSLAReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reports := &slaReportExporterMock{}
	handler := NewEvaluationHandler(&evaluationServiceMock{}, reports)

	c, w := newTeacherContext(http.MethodGet, "/evaluations/sla-report?from=2026-03-01&to=2026-03-31&format=csv", "")
	handler.SLAReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-01", reports.lastQuery.From)
	assert.Equal(t, "csv", reports.lastQuery.Format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sla-report-2026-03-01-2026-03-31.csv")
}

func TestEvaluationHandlerSLAReportValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reports := &slaReportExporterMock{err: appErrors.Clone(appErrors.ErrValidation, "to must not be before from")}
	handler := NewEvaluationHandler(&evaluationServiceMock{}, reports)

	c, w := newTeacherContext(http.MethodGet, "/evaluations/sla-report?from=2026-03-31&to=2026-03-01", "")
	handler.SLAReport(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
