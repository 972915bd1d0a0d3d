package models

import "time"

// SubscriptionWindow grants exam access between two inclusive dates.
type SubscriptionWindow struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Plan      string    `db:"plan" json:"plan"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Covers reports whether day (a calendar date) lies inside the window.
func (w SubscriptionWindow) Covers(day time.Time) bool {
	d := dateOnly(day)
	return w.Active && !d.Before(dateOnly(w.StartDate)) && !d.After(dateOnly(w.EndDate))
}

// Overlaps reports whether two windows share at least one date.
func (w SubscriptionWindow) Overlaps(other SubscriptionWindow) bool {
	return !dateOnly(w.StartDate).After(dateOnly(other.EndDate)) && !dateOnly(other.StartDate).After(dateOnly(w.EndDate))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntitlementReason explains a refused start.
type EntitlementReason string

const (
	EntitlementReasonNone           EntitlementReason = ""
	EntitlementReasonNoSubscription EntitlementReason = "no_active_subscription"
	EntitlementReasonQuotaExceeded  EntitlementReason = "quota_exceeded"
)

// Entitlement is the result of a start-exam check.
type Entitlement struct {
	Allowed bool              `json:"allowed"`
	Reason  EntitlementReason `json:"reason,omitempty"`
	Plan    string            `json:"plan,omitempty"`
	Period  string            `json:"period"`
	Used    int               `json:"used"`
	Quota   int               `json:"quota"`
}
