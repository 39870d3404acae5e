package queue

import (
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
)

// EmailJob is the payload of the email queue: one personalized message.
type EmailJob struct {
	TenantID     string     `json:"tenant_id"`
	SubscriberID string     `json:"subscriber_id,omitempty"`
	To           string     `json:"to"`
	ToName       string     `json:"to_name,omitempty"`
	FromName     string     `json:"from_name,omitempty"`
	Subject      string     `json:"subject"`
	Content      string     `json:"content"`
	SendAt       *time.Time `json:"send_at,omitempty"`
	Priority     int        `json:"priority,omitempty"`
	CampaignID   string     `json:"campaign_id,omitempty"`
	ExecutionID  string     `json:"execution_id,omitempty"`
}

// CampaignJob is the payload of the campaign queue. The handler processes
// one recipient batch and re-enqueues itself with Offset advanced by
// BatchSize until the list is exhausted — a continuation message, not a loop.
type CampaignJob struct {
	CampaignID string `json:"campaign_id"`
	TenantID   string `json:"tenant_id"`
	BatchSize  int    `json:"batch_size"`
	Offset     int    `json:"offset"`
}

// AutomationJob is the continuation payload of the automation queue: one
// step of one execution. NodeID empty means "start at the entry node".
// Epoch must match the execution's ContinuationEpoch or the job is stale.
type AutomationJob struct {
	ExecutionID  string `json:"execution_id"`
	AutomationID string `json:"automation_id"`
	SubscriberID string `json:"subscriber_id"`
	TenantID     string `json:"tenant_id"`
	NodeID       string `json:"node_id,omitempty"`
	Epoch        int    `json:"epoch"`
}

// AnalyticsJob is the fire-and-forget payload of the analytics queue.
type AnalyticsJob struct {
	Event models.AnalyticsEvent `json:"event"`
}
