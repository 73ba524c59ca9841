package errors

import (
	"errors"
	"fmt"

	"neurocca/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeFromDomain(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise maps the
// domain taxonomy.
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeFromDomain(err)
}

// Predefined error codes
const (
	CodeConfigInvalid        = "CONFIG_INVALID"
	CodeNotFound             = "NOT_FOUND"
	CodeShapeMismatch        = "SHAPE_MISMATCH"
	CodeInvalidLevel         = "INVALID_LEVEL"
	CodeDegenerateInput      = "DEGENERATE_INPUT"
	CodeInsufficientRank     = "INSUFFICIENT_RANK"
	CodeNumericalInstability = "NUMERICAL_INSTABILITY"
	CodeDatabaseError        = "DATABASE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// CodeFromDomain maps the domain sentinel taxonomy to boundary codes.
func CodeFromDomain(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, core.ErrShapeMismatch):
		return CodeShapeMismatch
	case errors.Is(err, core.ErrInvalidLevel):
		return CodeInvalidLevel
	case errors.Is(err, core.ErrDegenerateInput):
		return CodeDegenerateInput
	case errors.Is(err, core.ErrInsufficientRank):
		return CodeInsufficientRank
	case errors.Is(err, core.ErrNumericalInstability):
		return CodeNumericalInstability
	default:
		return CodeInternalError
	}
}

// ConfigInvalid builds a configuration error.
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// DatabaseError builds a persistence error.
func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}
