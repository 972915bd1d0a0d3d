package models

import "time"

// Holiday is a non-working date owned by the admin configuration.
type Holiday struct {
	Date time.Time `db:"holiday_date" json:"date"`
	Name string    `db:"name" json:"name"`
}
