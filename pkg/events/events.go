// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/models"
)

type EventType string

// Topic carries every lifecycle event; consumers filter on the event_type
// metadata key.
const Topic = "mailgrove.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Step-level events.
	NodeCompletedEvent EventType = "node.completed"

	// Campaign events.
	CampaignSentEvent EventType = "campaign.sent"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	AutomationID string `json:"automation_id"`
	SubscriberID string `json:"subscriber_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID  string        `json:"execution_id"`
	AutomationID string        `json:"automation_id"`
	Duration     time.Duration `json:"duration"`
	StepCount    int           `json:"step_count"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	AutomationID string `json:"automation_id"`
	Error        string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// NodeCompleted reports one node invocation, success or failure.
type NodeCompleted struct {
	BaseEvent

	ExecutionID  string            `json:"execution_id"`
	AutomationID string            `json:"automation_id"`
	NodeID       string            `json:"node_id"`
	NodeType     models.NodeType   `json:"node_type"`
	Status       models.StepStatus `json:"status"`
	DurationMs   int64             `json:"duration_ms"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type CampaignSent struct {
	BaseEvent

	CampaignID string `json:"campaign_id"`
	Recipients int    `json:"recipients"`
}

func (e CampaignSent) GetType() EventType {
	return CampaignSentEvent
}
