package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/export"
)

type reportSourceStub struct {
	rows   []models.SLAReportRow
	filter models.SLAReportFilter
}

func (r *reportSourceStub) ListForReport(ctx context.Context, filter models.SLAReportFilter) ([]models.SLAReportRow, error) {
	r.filter = filter
	return r.rows, nil
}

func reportRows() []models.SLAReportRow {
	deadline := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	completed := deadline.Add(-time.Hour)
	breached := deadline.Add(time.Minute)
	return []models.SLAReportRow{
		{EvaluationID: "eval-1", ExamInstanceID: "exam-1", SLAHours: 24, Status: models.EvaluationStatusCompleted, AssignedTeacherID: ptr("t-1"), Deadline: deadline, CompletedAt: &completed},
		{EvaluationID: "eval-2", ExamInstanceID: "exam-2", SLAHours: 48, Status: models.EvaluationStatusCompleted, AssignedTeacherID: ptr("t-2"), Deadline: deadline, CompletedAt: &completed, BreachedAt: &breached},
		{EvaluationID: "eval-3", ExamInstanceID: "exam-3", SLAHours: 24, Status: models.EvaluationStatusPending, Deadline: deadline},
	}
}

func TestBuildSLATable(t *testing.T) {
	table := BuildSLATable(reportRows(), time.UTC)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "yes", table.Rows[0][8])
	assert.Equal(t, "no", table.Rows[1][8])
	assert.Equal(t, "pending", table.Rows[2][8])
	assert.Equal(t, "", table.Rows[2][4])
	assert.Equal(t, "2026-03-11 10:00", table.Rows[0][5])
	assert.Equal(t, "3 evaluations, 1 of 2 decided met SLA (50.0%)", table.Footer)
}

func TestSLAReportExportCSV(t *testing.T) {
	source := &reportSourceStub{rows: reportRows()}
	svc := NewSLAReportService(source, export.NewCSVExporter(), export.NewPDFExporter(), time.UTC, nil, nil)

	report, err := svc.Export(context.Background(), dto.SLAReportQuery{From: "2026-03-01", To: "2026-03-31"})
	require.NoError(t, err)
	assert.Equal(t, "sla-report-2026-03-01-2026-03-31.csv", report.Filename)
	assert.Equal(t, "text/csv", report.ContentType)
	assert.True(t, strings.HasPrefix(string(report.Body), strings.Join(slaReportHeaders, ",")))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), source.filter.To)
}

func TestSLAReportExportPDF(t *testing.T) {
	svc := NewSLAReportService(&reportSourceStub{rows: reportRows()}, export.NewCSVExporter(), export.NewPDFExporter(), time.UTC, nil, nil)

	report, err := svc.Export(context.Background(), dto.SLAReportQuery{Format: "pdf", From: "2026-03-01", To: "2026-03-31"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, strings.HasPrefix(string(report.Body), "%PDF"))
}

func TestSLAReportExportValidation(t *testing.T) {
	svc := NewSLAReportService(&reportSourceStub{}, export.NewCSVExporter(), export.NewPDFExporter(), time.UTC, nil, nil)

	for _, q := range []dto.SLAReportQuery{
		{Format: "xlsx", From: "2026-03-01", To: "2026-03-31"},
		{From: "2026-03-31", To: "2026-03-01"},
		{From: "March", To: "2026-03-01"},
	} {
		_, err := svc.Export(context.Background(), q)
		require.ErrorIs(t, err, appErrors.ErrValidation)
	}
}
