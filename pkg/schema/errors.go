package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeCycleArchived             = "CYCLE_ARCHIVED"
	ErrCodeComponentAlreadyStarted   = "COMPONENT_ALREADY_STARTED"
	ErrCodePreviousComponentRequired = "PREVIOUS_COMPONENT_REQUIRED"
	ErrCodeInvalidTransition         = "INVALID_STATE_TRANSITION"
	ErrCodeComponentNotFound         = "COMPONENT_NOT_FOUND"
	ErrCodeCannotBranch              = "CANNOT_BRANCH"
	ErrCodeValidation                = "VALIDATION_ERROR"
	ErrCodeNotFound                  = "NOT_FOUND"
	ErrCodeConflict                  = "CONFLICT"
	ErrCodeStore                     = "STORE_ERROR"
	ErrCodeExecution                 = "EXECUTION_ERROR"
)

// ProactError is the structured error type for all cycle operations.
type ProactError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Component ComponentType  `json:"component,omitempty"`
	Field     string         `json:"field,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ProactError) Error() string {
	switch {
	case e.Component != "" && e.Field != "":
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Component, e.Field, e.Message)
	case e.Component != "":
		return fmt.Sprintf("[%s] component %s: %s", e.Code, e.Component, e.Message)
	case e.Field != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProactError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ProactError.
func NewError(code, message string) *ProactError {
	return &ProactError{Code: code, Message: message}
}

// NewErrorf creates a new ProactError with a formatted message.
func NewErrorf(code, format string, args ...any) *ProactError {
	return &ProactError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithComponent attaches the component type the error concerns.
func (e *ProactError) WithComponent(ct ComponentType) *ProactError {
	e.Component = ct
	return e
}

// WithField attaches the offending field of a validation failure.
func (e *ProactError) WithField(field string) *ProactError {
	e.Field = field
	return e
}

// WithCause attaches an underlying cause.
func (e *ProactError) WithCause(err error) *ProactError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ProactError) WithDetails(details map[string]any) *ProactError {
	e.Details = details
	return e
}

// AsProactError extracts a *ProactError from anywhere in err's chain.
func AsProactError(err error) (*ProactError, bool) {
	var pe *ProactError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HasCode reports whether err carries a ProactError with the given code.
func HasCode(err error, code string) bool {
	pe, ok := AsProactError(err)
	return ok && pe.Code == code
}
