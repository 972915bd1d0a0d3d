package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// QuestionRepository reads the content collaborator's question bank.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// ListCandidates returns every bank question matching the filter ordered by id.
// Random sampling happens in the caller.
func (r *QuestionRepository) ListCandidates(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error) {
	conditions := []string{"kind = $1"}
	args := []interface{}{filter.Kind}
	if len(filter.Units) > 0 {
		placeholders := make([]string, len(filter.Units))
		for i, unit := range filter.Units {
			args = append(args, unit)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("unit IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Difficulty != nil {
		args = append(args, *filter.Difficulty)
		conditions = append(conditions, fmt.Sprintf("difficulty = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT id, kind, text, options, correct_option, marks, unit, difficulty, max_words, rubric
FROM questions WHERE %s ORDER BY id`, strings.Join(conditions, " AND "))

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, fmt.Errorf("list candidate questions: %w", err)
	}
	return questions, nil
}
