// Package web provides the REST API in front of the engine: execution
// lifecycle endpoints, campaign sending, queue introspection, and event
// ingestion.
package web

import "time"

// StartExecutionRequest represents the request body for starting an
// automation execution.
type StartExecutionRequest struct {
	AutomationID string `json:"automation_id" validate:"required"`
	SubscriberID string `json:"subscriber_id" validate:"required"`
}

// StartExecutionResponse carries the id of the created execution.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// TrackEventRequest represents the request body for ingesting one analytics
// event.
type TrackEventRequest struct {
	TenantID     string         `json:"tenant_id" validate:"required"`
	Kind         string         `json:"kind"      validate:"required"`
	SubscriberID string         `json:"subscriber_id,omitempty"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	ExecutionID  string         `json:"execution_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// RateLimitResponse is the JSON shape of a 429 rate-limit denial body.
type RateLimitResponse struct {
	Scope      string        `json:"scope"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}
