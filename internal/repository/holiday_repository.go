package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// HolidayRepository reads the admin-configured holiday calendar.
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository constructs the repository.
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// ListFrom returns holidays on or after from, ordered by date.
func (r *HolidayRepository) ListFrom(ctx context.Context, from time.Time) ([]models.Holiday, error) {
	const query = `SELECT holiday_date, name FROM holidays WHERE holiday_date >= $1 ORDER BY holiday_date`
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query, from.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}
