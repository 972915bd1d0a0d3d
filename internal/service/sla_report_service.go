package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/export"
)

type slaReportSource interface {
	ListForReport(ctx context.Context, filter models.SLAReportFilter) ([]models.SLAReportRow, error)
}

type tableRenderer interface {
	ContentType() string
	Extension() string
	Render(table export.Table) ([]byte, error)
}

// SLAReport is a rendered compliance export.
type SLAReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

var slaReportHeaders = []string{
	"evaluation_id", "exam_instance_id", "sla_hours", "status", "teacher",
	"deadline", "completed_at", "breached_at", "met_sla",
}

// SLAReportService renders SLA compliance for evaluations created in a date range.
type SLAReportService struct {
	source    slaReportSource
	renderers map[string]tableRenderer
	loc       *time.Location
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewSLAReportService wires the report with CSV and PDF renderers.
func NewSLAReportService(source slaReportSource, csv, pdf tableRenderer, loc *time.Location, validate *validator.Validate, logger *zap.Logger) *SLAReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SLAReportService{
		source:    source,
		renderers: map[string]tableRenderer{"csv": csv, "pdf": pdf},
		loc:       loc,
		validate:  validate,
		logger:    logger,
	}
}

// Export renders the report. from and to are inclusive calendar dates.
func (s *SLAReportService) Export(ctx context.Context, query dto.SLAReportQuery) (*SLAReport, error) {
	if err := s.validate.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report query")
	}
	format := query.Format
	if format == "" {
		format = "csv"
	}
	renderer := s.renderers[format]
	if renderer == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	from, _ := time.ParseInLocation("2006-01-02", query.From, s.loc)
	to, _ := time.ParseInLocation("2006-01-02", query.To, s.loc)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	rows, err := s.source.ListForReport(ctx, models.SLAReportFilter{From: from, To: to.AddDate(0, 0, 1)})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sla report")
	}

	table := BuildSLATable(rows, s.loc)
	table.Title = fmt.Sprintf("Evaluation SLA compliance %s to %s", query.From, query.To)
	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sla report")
	}
	s.logger.Info("sla report exported", zap.String("format", format), zap.Int("rows", len(rows)))
	return &SLAReport{
		Filename:    fmt.Sprintf("sla-report-%s-%s.%s", query.From, query.To, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// BuildSLATable converts report rows to a table. met_sla is "pending" while
// an unbreached evaluation is still open.
func BuildSLATable(rows []models.SLAReportRow, loc *time.Location) export.Table {
	table := export.Table{Headers: slaReportHeaders}
	met, closed := 0, 0
	for _, row := range rows {
		teacher := ""
		if row.AssignedTeacherID != nil {
			teacher = *row.AssignedTeacherID
		}
		outcome := "pending"
		switch {
		case row.BreachedAt != nil:
			outcome = "no"
			closed++
		case row.CompletedAt != nil:
			outcome = "yes"
			met++
			closed++
		}
		table.Rows = append(table.Rows, []string{
			row.EvaluationID,
			row.ExamInstanceID,
			strconv.Itoa(row.SLAHours),
			string(row.Status),
			teacher,
			formatReportTime(&row.Deadline, loc),
			formatReportTime(row.CompletedAt, loc),
			formatReportTime(row.BreachedAt, loc),
			outcome,
		})
	}
	if closed > 0 {
		table.Footer = fmt.Sprintf("%d evaluations, %d of %d decided met SLA (%.1f%%)", len(rows), met, closed, float64(met)*100/float64(closed))
	} else {
		table.Footer = fmt.Sprintf("%d evaluations, none decided", len(rows))
	}
	return table
}

func formatReportTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
