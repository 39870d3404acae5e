// Package persistence provides the data-access abstraction the engine runs
// against. Storage engines are external collaborators; the engine assumes the
// implementation serializes conflicting writes per row.
package persistence

import (
	"context"
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
)

type Persistence interface {
	Automations() AutomationRepository
	Executions() ExecutionRepository
	Subscribers() SubscriberRepository
	Lists() ListRepository
	Campaigns() CampaignRepository
	Usage() UsageRepository
	Analytics() AnalyticsRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type AutomationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Automation, error)
	Save(ctx context.Context, automation *models.Automation) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.AutomationExecution) error
	GetByID(ctx context.Context, id string) (*models.AutomationExecution, error)
	// Update replaces the stored execution row atomically.
	Update(ctx context.Context, execution *models.AutomationExecution) error
}

type SubscriberRepository interface {
	GetByID(ctx context.Context, id string) (*models.Subscriber, error)
	Save(ctx context.Context, subscriber *models.Subscriber) error
	// UpdateField merges one key into the subscriber's custom-field map.
	UpdateField(ctx context.Context, subscriberID, field, value string) error
}

type ListRepository interface {
	GetByID(ctx context.Context, id string) (*models.List, error)
	Save(ctx context.Context, list *models.List) error
	AddMembership(ctx context.Context, listID, subscriberID string) error
	RemoveMembership(ctx context.Context, listID, subscriberID string) error
	IsMember(ctx context.Context, listID, subscriberID string) (bool, error)
	// MembersPage returns one page of list members in stable order.
	MembersPage(ctx context.Context, listID string, offset, limit int) ([]*models.Subscriber, error)
}

type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	Update(ctx context.Context, campaign *models.Campaign) error
}

// UsageScope selects which usage rows a window count matches. Empty fields
// are wildcards.
type UsageScope struct {
	TenantID  string
	APIKeyID  string
	IPAddress string
	Endpoint  string
}

type UsageRepository interface {
	Append(ctx context.Context, record models.UsageRecord) error
	// CountInWindow counts usage rows matching the scope with
	// Timestamp >= windowStart.
	CountInWindow(ctx context.Context, scope UsageScope, windowStart time.Time) (int, error)
}

type AnalyticsRepository interface {
	AppendEvent(ctx context.Context, event models.AnalyticsEvent) error
}
