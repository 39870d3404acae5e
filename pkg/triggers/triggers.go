// Package triggers defines the external sources that start automation
// executions. A source fires TriggerEvents; the worker turns each one into a
// PENDING execution plus its first automation job.
package triggers

import "context"

// TriggerEvent names one subscriber entering one automation.
type TriggerEvent struct {
	AutomationID string `json:"automation_id"`
	SubscriberID string `json:"subscriber_id"`
}

// Callback handles one fired trigger event.
type Callback func(ctx context.Context, event TriggerEvent) error

// Source is a running trigger listener.
type Source interface {
	Start(ctx context.Context, callback Callback) error
	Stop(ctx context.Context) error
}
