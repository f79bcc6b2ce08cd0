package models

import "fmt"

// ErrorType classifies application errors for transport mapping and logging.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError is the typed error carried across service boundaries. Sentinels
// are package-level values; WithCause and WithMetadata derive copies so the
// sentinels stay immutable.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Cause    error                  `json:"-"`
}

func (err *AppError) Error() string {
	if err.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", err.Code, err.Message, err.Cause)
	}
	return fmt.Sprintf("%s: %s", err.Code, err.Message)
}

func (err *AppError) Unwrap() error {
	return err.Cause
}

// WithCause returns a copy of the error wrapping an underlying cause.
func (err *AppError) WithCause(cause error) *AppError {
	clone := *err
	clone.Cause = cause
	return &clone
}

// WithMetadata returns a copy of the error with one metadata entry added.
func (err *AppError) WithMetadata(key string, value interface{}) *AppError {
	clone := *err
	clone.Metadata = make(map[string]interface{}, len(err.Metadata)+1)
	for k, v := range err.Metadata {
		clone.Metadata[k] = v
	}
	clone.Metadata[key] = value
	return &clone
}

func NewValidationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Code: code, Message: message}
}

func NewNotFoundError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Code: code, Message: message}
}

func NewExternalError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeExternal, Code: code, Message: message}
}

func NewInternalError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeInternal, Code: code, Message: message}
}

var (
	ErrSessionNotFound  = NewNotFoundError("SESSION_NOT_FOUND", "Workflow session not found")
	ErrStepDataNotFound = NewNotFoundError("STEP_DATA_NOT_FOUND", "No persisted data for step")
	ErrInvalidStep      = NewValidationError("INVALID_STEP", "Unknown workflow step")
)
