package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Authorization errors (wrong role or wrong participant)
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not-found / already-processed errors
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyProcessed ErrorCode = "ALREADY_PROCESSED"
	ErrCodeCallNotFound     ErrorCode = "CALL_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeCallInProgress ErrorCode = "CALL_IN_PROGRESS"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
)

// AppError is a structured application error with code, message and
// HTTP status. On the real-time channel the code/message pair is
// emitted as an error event scoped to the acting client.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code, message and status
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return New(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return New(ErrCodeForbidden, message, http.StatusForbidden)
}

// Not-found / already-processed errors
func NotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// AlreadyProcessedError covers acting on a conversation request that is
// not in the expected status anymore.
func AlreadyProcessedError() *AppError {
	return New(ErrCodeAlreadyProcessed, "Request not found or already processed", http.StatusConflict)
}

func CallNotFoundError() *AppError {
	return New(ErrCodeCallNotFound, "Call not found or already ended", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

func CallInProgressError() *AppError {
	return New(ErrCodeCallInProgress, "A call is already in progress", http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func StorageError(err error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

// GetAppError extracts an AppError, wrapping anything else as internal
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError(err.Error())
}
