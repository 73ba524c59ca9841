package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound          = errors.New("resource not found")
	ErrSubjectNotFound   = fmt.Errorf("%w: subject", ErrNotFound)
	ErrRunNotFound       = fmt.Errorf("%w: run", ErrNotFound)
	ErrConditionNotFound = fmt.Errorf("%w: condition", ErrNotFound)
	ErrArtifactNotFound  = fmt.Errorf("%w: artifact", ErrNotFound)

	// Shape and argument errors
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidLevel  = errors.New("invalid reduction level")

	// Numerical errors raised by the CCA engine
	ErrDegenerateInput      = errors.New("degenerate input: zero-variance feature column")
	ErrInsufficientRank     = errors.New("insufficient rank for requested components")
	ErrNumericalInstability = errors.New("numerical instability in canonical correlation fit")
)

// NewNotFoundError builds a not-found error with resource context.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewShapeMismatchError reports mismatched run/window counts or matrix dims.
func NewShapeMismatchError(want, got int, what string) error {
	return fmt.Errorf("%w: expected %d %s, got %d", ErrShapeMismatch, want, what, got)
}

// NewTrialError wraps a per-trial CCA failure with the trial index so the
// permutation driver's logs stay diagnosable.
func NewTrialError(trial int, err error) error {
	return fmt.Errorf("permutation trial %d: %w", trial, err)
}

// NewSubjectError wraps a failure with subject/task/condition context.
func NewSubjectError(subject SubjectID, task TaskName, condition ConditionName, err error) error {
	if condition == "" {
		return fmt.Errorf("subject %s task %s: %w", subject, task, err)
	}
	return fmt.Errorf("subject %s task %s condition %s: %w", subject, task, condition, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTrialRecoverable reports whether a CCA failure may be absorbed at trial
// granularity by the permutation driver. All other errors propagate.
func IsTrialRecoverable(err error) bool {
	return errors.Is(err, ErrDegenerateInput) ||
		errors.Is(err, ErrInsufficientRank) ||
		errors.Is(err, ErrNumericalInstability)
}
