package models

import "time"

// CampaignStatus represents the sending state of a one-shot campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Campaign is a one-shot bulk send to a list. Recipients are fanned out in
// batches by the campaign queue handler.
type Campaign struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"  validate:"required"`
	Name        string         `json:"name"       validate:"required"`
	Status      CampaignStatus `json:"status"`
	ListID      string         `json:"list_id"    validate:"required"`
	Subject     string         `json:"subject"    validate:"required"`
	Content     string         `json:"content"`
	FromName    string         `json:"from_name"`
	BatchSize   int            `json:"batch_size"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
