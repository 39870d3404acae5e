package models

import "time"

// UsageRecord is one append-only admission-control entry. The rate limiter
// only ever counts these in time windows; rows are never updated.
type UsageRecord struct {
	TenantID   string    `json:"tenant_id"`
	APIKeyID   string    `json:"api_key_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AnalyticsEvent is a fire-and-forget ingestion record (opens, clicks,
// sends). Losing one must never block the owning execution.
type AnalyticsEvent struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Kind         string         `json:"kind"`
	SubscriberID string         `json:"subscriber_id,omitempty"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	ExecutionID  string         `json:"execution_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
