package workflow

import (
	"errors"
	"fmt"

	"github.com/mailgrove/mailgrove/pkg/persistence"
)

// Step-level failures. Validation errors are fatal to the owning execution;
// transient errors feed the job's retry policy.
var (
	// Validation errors - fatal, no retry.
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidNodeConfig = errors.New("invalid node config")
	ErrNodeNotFound      = errors.New("node not found in graph")
	ErrNotCompiled       = errors.New("automation graph is not compiled")
	ErrMaxStepsExceeded  = errors.New("maximum step count exceeded")

	// Transient errors - retried by the job's backoff policy.
	ErrRateLimited = errors.New("tenant send rate exceeded")
)

// StepError wraps a step failure with the operation and node it came from.
type StepError struct {
	Op     string
	NodeID string
	Err    error
}

func (e *StepError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %v", e.Op, e.NodeID, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepError creates a step error with context.
func NewStepError(op, nodeID string, err error) *StepError {
	return &StepError{
		Op:     op,
		NodeID: nodeID,
		Err:    err,
	}
}

// IsValidationError checks if an error is a graph or config defect that
// retrying can never fix.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrUnknownActionType) ||
		errors.Is(err, ErrInvalidNodeConfig) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrNotCompiled) ||
		errors.Is(err, ErrMaxStepsExceeded)
}

// IsFatal checks if an error must fail the execution without retrying:
// validation defects and missing referenced entities. Everything else is
// treated as transient and handed to the job's retry machinery.
func IsFatal(err error) bool {
	return IsValidationError(err) || persistence.IsNotFound(err)
}
