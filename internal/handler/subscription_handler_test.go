package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

type entitlementServiceMock struct {
	entitlement   *models.Entitlement
	createErr     error
	lastStudentID string
	lastCreate    dto.CreateSubscriptionRequest
}

func (m *entitlementServiceMock) CanStartExam(ctx context.Context, studentID string) (*models.Entitlement, error) {
	m.lastStudentID = studentID
	return m.entitlement, nil
}

func (m *entitlementServiceMock) CreateWindow(ctx context.Context, req dto.CreateSubscriptionRequest) (*models.SubscriptionWindow, error) {
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.SubscriptionWindow{ID: "sub-1", StudentID: req.StudentID, Plan: req.Plan}, nil
}

func TestSubscriptionHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &entitlementServiceMock{}
	handler := NewSubscriptionHandler(svc)

	c, w := newStudentContext(http.MethodPost, "/subscriptions", []byte(`{"student_id":"stu-1","plan":"basic","start_date":"2026-01-01","end_date":"2026-12-31"}`))
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "basic", svc.lastCreate.Plan)
	assert.Equal(t, "2026-12-31", svc.lastCreate.EndDate)
}

func TestSubscriptionHandlerCreateOverlap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &entitlementServiceMock{createErr: appErrors.WithDetails(appErrors.ErrSubscriptionOverlap, "overlap", map[string]interface{}{
		"conflicting_window_id": "sub-0",
	})}
	handler := NewSubscriptionHandler(svc)

	c, w := newStudentContext(http.MethodPost, "/subscriptions", []byte(`{"student_id":"stu-1","plan":"basic","start_date":"2026-01-01","end_date":"2026-12-31"}`))
	handler.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	code, details := decodeErrorCode(t, w)
	assert.Equal(t, "SUBSCRIPTION_OVERLAP", code)
	assert.Equal(t, "sub-0", details["conflicting_window_id"])
}

func TestSubscriptionHandlerEntitlement(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &entitlementServiceMock{entitlement: &models.Entitlement{Allowed: false, Reason: models.EntitlementReasonQuotaExceeded, Period: "2026-03", Used: 3, Quota: 3}}
	handler := NewSubscriptionHandler(svc)

	c, w := newStudentContext(http.MethodGet, "/entitlements/me", nil)
	handler.Entitlement(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.lastStudentID)
	var body struct {
		Data models.Entitlement `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.Allowed)
	assert.Equal(t, models.EntitlementReasonQuotaExceeded, body.Data.Reason)
}
