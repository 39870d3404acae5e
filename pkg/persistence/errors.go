// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSubscriberNotFound indicates a subscriber was not found by the given identifier.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrListNotFound indicates a list was not found by the given identifier.
	ErrListNotFound = errors.New("list not found")

	// ErrCampaignNotFound indicates a campaign was not found by the given identifier.
	ErrCampaignNotFound = errors.New("campaign not found")
)

// RepositoryError wraps repository errors with operation context.
type RepositoryError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update")
	Entity string // Entity kind ("execution", "automation", ...)
	ID     string // Row identifier if applicable
	Err    error  // Underlying error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRepositoryError creates a repository error with context.
func NewRepositoryError(op, entity, id string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks whether an error indicates any missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrSubscriberNotFound) ||
		errors.Is(err, ErrListNotFound) ||
		errors.Is(err, ErrCampaignNotFound)
}

// IsAutomationNotFound checks if an error indicates a missing automation.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
