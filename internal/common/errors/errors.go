// Package errors provides standardized error handling for the follow-up
// pipeline workers.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation: malformed input to a status transition. Rejected
	// immediately, no state change.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Ownership: the target row is not owned by the caller. Reported
	// identically to true absence so existence never leaks.
	ErrCodeNotFoundOrDenied ErrorCode = "NOT_FOUND_OR_ACCESS_DENIED"

	// Invalid state transitions (terminal row, escalated guard, etc.)
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Store failures
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout         ErrorCode = "QUERY_TIMEOUT"

	// Transport failures
	ErrCodeMailSendFailed    ErrorCode = "MAIL_SEND_FAILED"
	ErrCodeManagerLookupFail ErrorCode = "MANAGER_LOOKUP_FAILED"

	// Terminal delivery failure: retry ceiling exceeded, surfaced only via
	// queue stats.
	ErrCodeRetryCeilingExceeded ErrorCode = "RETRY_CEILING_EXCEEDED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewValidationFailedError creates a non-retryable input validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundOrDeniedError creates the uniform "not found or access denied"
// error used for both absence and ownership mismatch.
func NewNotFoundOrDeniedError(entity string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFoundOrDenied,
		Message:   "Not found or access denied",
		Details:   fmt.Sprintf("entity: %s", entity),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable state transition error.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Invalid status transition",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMailSendFailedError creates a retryable mail transport error. The queue's
// backoff mechanism owns the retry, not the job harness.
func NewMailSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailSendFailed,
		Message:   "Mail transport delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewManagerLookupFailedError creates a retryable directory lookup error.
func NewManagerLookupFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeManagerLookupFail,
		Message:   "Manager resolution failed",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the job-level retry count for an error code. The email
// queue carries its own attempt bookkeeping, so transport failures inside the
// queue never translate into job retries.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeQueryExecutionFailed, ErrCodeManagerLookupFail:
		return 3
	case ErrCodeQueryTimeout:
		return 2
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable at the job level.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}
