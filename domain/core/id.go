package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// RunID identifies one full analysis run (cache build + permutation test).
	RunID ID
	// SubjectID is the HCP subject identifier (e.g. "100610").
	SubjectID string
	// TaskName is an HCP task experiment name (e.g. "WM", "MOTOR").
	TaskName string
	// ConditionName is a condition within a task (e.g. "2bk_faces", "lh").
	ConditionName string
)

func (id RunID) String() string        { return ID(id).String() }
func (id SubjectID) String() string    { return string(id) }
func (t TaskName) String() string      { return string(t) }
func (c ConditionName) String() string { return string(c) }

// NewRunID creates a fresh run identifier.
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseSubjectID parses a string into SubjectID
func ParseSubjectID(s string) (SubjectID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("subject ID cannot be empty")
	}
	return SubjectID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}
