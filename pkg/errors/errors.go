package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Entitlement errors are user facing and never retried.
var (
	ErrQuotaExceeded        = New("QUOTA_EXCEEDED", http.StatusForbidden, "monthly exam quota exhausted")
	ErrNoActiveSubscription = New("NO_ACTIVE_SUBSCRIPTION", http.StatusForbidden, "no active subscription covers today")
	ErrSubscriptionOverlap  = New("SUBSCRIPTION_OVERLAP", http.StatusConflict, "subscription window overlaps an active window")
)

// Protocol violations surface as client errors.
var (
	ErrInvalidStateTransition = New("INVALID_STATE_TRANSITION", http.StatusConflict, "invalid state transition")
	ErrAnswerAfterSubmission  = New("ANSWER_AFTER_SUBMISSION", http.StatusConflict, "answers are closed for this exam")
	ErrDuplicateEvaluation    = New("DUPLICATE_EVALUATION", http.StatusConflict, "evaluation already exists for exam")
)

// Operational and configuration errors.
var (
	ErrAssignmentFailure = New("ASSIGNMENT_FAILURE", http.StatusServiceUnavailable, "no active teacher available")
	ErrInvalidSLAClass   = New("INVALID_SLA_CLASS", http.StatusInternalServerError, "sla class must be 24 or 48 working hours")
	ErrInvalidConfig     = New("INVALID_CONFIGURATION", http.StatusInternalServerError, "invalid configuration")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = nil
	return &clone
}

// WithDetails returns a copy of the error carrying caller-facing context such as
// the current state or deadline.
func WithDetails(err *Error, message string, details map[string]interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	clone.Details = details
	return clone
}
