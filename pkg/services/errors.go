// Package services provides the application services in front of the engine:
// execution lifecycle control, campaign batch sending, outbound delivery, and
// analytics ingestion.
package services

import (
	"errors"
	"fmt"

	"github.com/mailgrove/mailgrove/pkg/persistence"
)

var (
	// Not-found errors surface the persistence sentinels directly.
	ErrAutomationNotFound = persistence.ErrAutomationNotFound
	ErrExecutionNotFound  = persistence.ErrExecutionNotFound
	ErrCampaignNotFound   = persistence.ErrCampaignNotFound

	// Lifecycle conflicts (409 Conflict).
	ErrExecutionNotPausable   = errors.New("execution cannot be paused in its current status")
	ErrExecutionNotResumable  = errors.New("execution is not paused")
	ErrExecutionNotCancelable = errors.New("execution already finished")
	ErrCampaignNotStartable   = errors.New("campaign cannot be started in its current status")
)

// ServiceError wraps service-level errors with the failing operation.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsConflictError checks if an error is a lifecycle conflict that should
// return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionNotPausable) ||
		errors.Is(err, ErrExecutionNotResumable) ||
		errors.Is(err, ErrExecutionNotCancelable) ||
		errors.Is(err, ErrCampaignNotStartable)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}
