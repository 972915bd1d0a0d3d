package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCountsDomainEvents(t *testing.T) {
	m := NewMetricsService()
	m.ExamStarted()
	m.ExamSubmitted("auto_timeout")
	m.ExamSubmitted("auto_timeout")
	m.EvaluationsBreached(3)
	m.EvaluationsBreached(0)
	m.EvaluationCompleted(true)
	m.EntitlementDenied("quota_exceeded")
	m.ObserveScan("evaluation", 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.examsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.examsSubmitted.WithLabelValues("auto_timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.breaches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entitlementDenied.WithLabelValues("quota_exceeded")))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/exams/:id", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ExamStarted()
	m.AssignmentFailed()
	m.EventPublished("evaluation.breached", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
