package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// TeacherRepository reads the roster and derives evaluation load.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ListActiveLoads computes, for every active teacher, the number of assigned
// evaluations not yet completed and the latest assignment time. Breached work
// still held by a teacher counts towards load.
func (r *TeacherRepository) ListActiveLoads(ctx context.Context) ([]models.TeacherLoad, error) {
	const query = `SELECT t.id AS teacher_id,
       COUNT(e.id) FILTER (WHERE e.status <> 'completed') AS active_count,
       MAX(e.assigned_at) AS last_assigned_at
FROM teachers t
LEFT JOIN evaluations e ON e.assigned_teacher_id = t.id
WHERE t.active = TRUE
GROUP BY t.id`
	var loads []models.TeacherLoad
	if err := r.db.SelectContext(ctx, &loads, query); err != nil {
		return nil, fmt.Errorf("list teacher loads: %w", err)
	}
	return loads, nil
}
