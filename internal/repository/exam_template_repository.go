package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// ExamTemplateRepository reads published exam templates.
type ExamTemplateRepository struct {
	db *sqlx.DB
}

// NewExamTemplateRepository constructs the repository.
func NewExamTemplateRepository(db *sqlx.DB) *ExamTemplateRepository {
	return &ExamTemplateRepository{db: db}
}

// GetLatestPublished returns the highest published version of a template.
func (r *ExamTemplateRepository) GetLatestPublished(ctx context.Context, id string) (*models.ExamTemplate, error) {
	const query = `SELECT id, version, title, duration_minutes, sla_hours, total_marks, rules, published, created_at
FROM exam_templates WHERE id = $1 AND published = TRUE ORDER BY version DESC LIMIT 1`
	var tpl models.ExamTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, fmt.Errorf("get exam template: %w", err)
	}
	return &tpl, nil
}
