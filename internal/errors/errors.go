package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Scan rejection reasons. These are expected outcomes, reported to the
	// client so it can tell the student to re-scan, wait, or give up.
	ErrCodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	ErrCodeSessionInactive      ErrorCode = "SESSION_INACTIVE"
	ErrCodeTokenSessionMismatch ErrorCode = "TOKEN_SESSION_MISMATCH"
	ErrCodeOutOfWindow          ErrorCode = "OUT_OF_WINDOW"
	ErrCodeSubmissionDelayed    ErrorCode = "SUBMISSION_DELAYED"
	ErrCodeClassNotEligible     ErrorCode = "CLASS_NOT_ELIGIBLE"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Lifecycle
	ErrCodeSessionNotFoundOrInactive ErrorCode = "NOT_FOUND_OR_INACTIVE"
	ErrCodeSessionAlreadyClosed      ErrorCode = "SESSION_ALREADY_CLOSED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeCache    ErrorCode = "CACHE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func SessionInactive() *AppError {
	return New(ErrCodeSessionInactive, "Session is inactive or has expired")
}

func TokenSessionMismatch() *AppError {
	return New(ErrCodeTokenSessionMismatch, "QR token session mismatch")
}

func OutOfWindow() *AppError {
	return New(ErrCodeOutOfWindow, "QR scan time is outside the valid window")
}

func SubmissionDelayed() *AppError {
	return New(ErrCodeSubmissionDelayed, "QR scan submission delayed beyond acceptable limit")
}

func ClassNotEligible() *AppError {
	return New(ErrCodeClassNotEligible, "Student's class is not eligible for this session")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func SessionNotFoundOrInactive() *AppError {
	return New(ErrCodeSessionNotFoundOrInactive, "Session not found or already inactive")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func Cache(cause error) *AppError {
	return Wrap(ErrCodeCache, "Ephemeral store error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRejection reports whether the code is an expected scan-rejection reason,
// as opposed to a system failure. Rejections are never logged as errors.
func IsRejection(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidToken,
		ErrCodeSessionInactive,
		ErrCodeTokenSessionMismatch,
		ErrCodeOutOfWindow,
		ErrCodeSubmissionDelayed,
		ErrCodeClassNotEligible:
		return true
	default:
		return false
	}
}
