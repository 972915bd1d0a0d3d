package models

import "time"

// TeacherLoad is derived per query from evaluation rows and never stored.
type TeacherLoad struct {
	TeacherID      string     `db:"teacher_id" json:"teacher_id"`
	ActiveCount    int        `db:"active_count" json:"active_count"`
	LastAssignedAt *time.Time `db:"last_assigned_at" json:"last_assigned_at,omitempty"`
}
