package errors

import (
	goerrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// Configuration errors
	ErrTypeConfig ErrorType = "CONFIG"
	// YouTube Data API errors that should not be retried
	ErrTypeAPI ErrorType = "API"
	// Tracked-set store errors
	ErrTypeStorage ErrorType = "STORAGE"
	// Validation errors
	ErrTypeValidation ErrorType = "VALIDATION"
	// Transient faults, retried by the retry wrapper
	ErrTypeTemporary ErrorType = "TEMPORARY"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType
	Message   string
	Err       error
	Timestamp time.Time
	Context   map[string]interface{}
	Retriable bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsRetriable returns whether the error is retriable
func (e *AppError) IsRetriable() bool {
	return e.Retriable
}

// With attaches a context value and returns the same error for chaining.
func (e *AppError) With(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError
func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
		Retriable: errType == ErrTypeTemporary,
	}
}

// Config creates a configuration error
func Config(message string, err error) *AppError {
	return New(ErrTypeConfig, message, err)
}

// API creates an API error
func API(message string, err error) *AppError {
	return New(ErrTypeAPI, message, err)
}

// Storage creates a storage error
func Storage(message string, err error) *AppError {
	return New(ErrTypeStorage, message, err)
}

// Validation creates a validation error
func Validation(message string, err error) *AppError {
	return New(ErrTypeValidation, message, err)
}

// Temporary creates a temporary/retriable error
func Temporary(message string, err error) *AppError {
	e := New(ErrTypeTemporary, message, err)
	e.Retriable = true
	return e
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if goerrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetriable reports whether err carries a retriable AppError anywhere in its chain.
// Errors that are not AppErrors are treated as retriable.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := As(err); ok {
		return appErr.IsRetriable()
	}
	return true
}

// GetType returns the error type if it's an AppError
func GetType(err error) (ErrorType, bool) {
	if appErr, ok := As(err); ok {
		return appErr.Type, true
	}
	return "", false
}
