package dto

// CreateSubscriptionRequest registers a subscription window. Dates are inclusive YYYY-MM-DD.
type CreateSubscriptionRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Plan      string `json:"plan" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}
