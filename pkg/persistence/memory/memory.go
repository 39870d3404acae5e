// Package memory provides an in-memory persistence implementation for
// development and tests. Writes are serialized by a single mutex, matching
// the per-row serialization the engine expects from real storage.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	automations map[string]*models.Automation
	executions  map[string]*models.AutomationExecution
	subscribers map[string]*models.Subscriber
	lists       map[string]*models.List
	members     map[string][]string // listID -> subscriber IDs, insertion order
	campaigns   map[string]*models.Campaign
	usage       []models.UsageRecord
	events      []models.AnalyticsEvent
}

func NewPersistence() *Persistence {
	return &Persistence{
		automations: make(map[string]*models.Automation),
		executions:  make(map[string]*models.AutomationExecution),
		subscribers: make(map[string]*models.Subscriber),
		lists:       make(map[string]*models.List),
		members:     make(map[string][]string),
		campaigns:   make(map[string]*models.Campaign),
	}
}

func (p *Persistence) Automations() persistence.AutomationRepository { return &automationRepo{p} }
func (p *Persistence) Executions() persistence.ExecutionRepository   { return &executionRepo{p} }
func (p *Persistence) Subscribers() persistence.SubscriberRepository { return &subscriberRepo{p} }
func (p *Persistence) Lists() persistence.ListRepository             { return &listRepo{p} }
func (p *Persistence) Campaigns() persistence.CampaignRepository     { return &campaignRepo{p} }
func (p *Persistence) Usage() persistence.UsageRepository            { return &usageRepo{p} }
func (p *Persistence) Analytics() persistence.AnalyticsRepository    { return &analyticsRepo{p} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

type automationRepo struct{ p *Persistence }

func (r *automationRepo) GetByID(_ context.Context, id string) (*models.Automation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	automation, ok := r.p.automations[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetByID", "automation", id, persistence.ErrAutomationNotFound)
	}

	return copyAutomation(automation), nil
}

func (r *automationRepo) Save(_ context.Context, automation *models.Automation) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.automations[automation.ID] = copyAutomation(automation)

	return nil
}

// copyAutomation hands each caller its own graph: Compile mutates nodes in
// place, so two workers loading the same automation must not share them.
func copyAutomation(automation *models.Automation) *models.Automation {
	clone := *automation

	if automation.Nodes != nil {
		clone.Nodes = make([]*models.WorkflowNode, len(automation.Nodes))
		for i, node := range automation.Nodes {
			n := *node
			clone.Nodes[i] = &n
		}
	}

	if automation.Connections != nil {
		clone.Connections = make([]*models.Connection, len(automation.Connections))
		for i, conn := range automation.Connections {
			c := *conn
			clone.Connections[i] = &c
		}
	}

	if automation.Steps != nil {
		clone.Steps = make([]*models.WorkflowStep, len(automation.Steps))
		for i, step := range automation.Steps {
			s := *step
			clone.Steps[i] = &s
		}
	}

	return &clone
}

type executionRepo struct{ p *Persistence }

func (r *executionRepo) Create(_ context.Context, execution *models.AutomationExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (r *executionRepo) GetByID(_ context.Context, id string) (*models.AutomationExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (r *executionRepo) Update(_ context.Context, execution *models.AutomationExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; !ok {
		return persistence.NewRepositoryError("Update", "execution", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.p.executions[execution.ID] = copyExecution(execution)

	return nil
}

// copyExecution gives callers row semantics: mutations only land on Update.
func copyExecution(execution *models.AutomationExecution) *models.AutomationExecution {
	clone := *execution
	clone.Log = append([]models.StepRecord(nil), execution.Log...)

	if execution.Variables != nil {
		clone.Variables = make(map[string]string, len(execution.Variables))
		for k, v := range execution.Variables {
			clone.Variables[k] = v
		}
	}

	return &clone
}

type subscriberRepo struct{ p *Persistence }

func (r *subscriberRepo) GetByID(_ context.Context, id string) (*models.Subscriber, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	subscriber, ok := r.p.subscribers[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetByID", "subscriber", id, persistence.ErrSubscriberNotFound)
	}

	return copySubscriber(subscriber), nil
}

func (r *subscriberRepo) Save(_ context.Context, subscriber *models.Subscriber) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.subscribers[subscriber.ID] = copySubscriber(subscriber)

	return nil
}

// copySubscriber gives readers their own CustomFields map; UpdateField
// mutates the stored row under the store lock and must never race a read.
func copySubscriber(subscriber *models.Subscriber) *models.Subscriber {
	clone := *subscriber

	if subscriber.CustomFields != nil {
		clone.CustomFields = make(map[string]string, len(subscriber.CustomFields))
		for k, v := range subscriber.CustomFields {
			clone.CustomFields[k] = v
		}
	}

	return &clone
}

func (r *subscriberRepo) UpdateField(_ context.Context, subscriberID, field, value string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	subscriber, ok := r.p.subscribers[subscriberID]
	if !ok {
		return persistence.NewRepositoryError("UpdateField", "subscriber", subscriberID, persistence.ErrSubscriberNotFound)
	}

	if subscriber.CustomFields == nil {
		subscriber.CustomFields = make(map[string]string)
	}

	subscriber.CustomFields[field] = value

	return nil
}

type listRepo struct{ p *Persistence }

func (r *listRepo) GetByID(_ context.Context, id string) (*models.List, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	list, ok := r.p.lists[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetByID", "list", id, persistence.ErrListNotFound)
	}

	clone := *list

	return &clone, nil
}

func (r *listRepo) Save(_ context.Context, list *models.List) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.lists[list.ID] = list

	if _, ok := r.p.members[list.ID]; !ok {
		r.p.members[list.ID] = nil
	}

	return nil
}

func (r *listRepo) AddMembership(_ context.Context, listID, subscriberID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.lists[listID]; !ok {
		return persistence.NewRepositoryError("AddMembership", "list", listID, persistence.ErrListNotFound)
	}

	for _, id := range r.p.members[listID] {
		if id == subscriberID {
			return nil
		}
	}

	r.p.members[listID] = append(r.p.members[listID], subscriberID)

	return nil
}

func (r *listRepo) RemoveMembership(_ context.Context, listID, subscriberID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	members := r.p.members[listID]
	for i, id := range members {
		if id == subscriberID {
			r.p.members[listID] = append(members[:i], members[i+1:]...)

			return nil
		}
	}

	return nil
}

func (r *listRepo) IsMember(_ context.Context, listID, subscriberID string) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, id := range r.p.members[listID] {
		if id == subscriberID {
			return true, nil
		}
	}

	return false, nil
}

func (r *listRepo) MembersPage(_ context.Context, listID string, offset, limit int) ([]*models.Subscriber, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids := r.p.members[listID]
	if offset >= len(ids) {
		return nil, nil
	}

	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	page := make([]*models.Subscriber, 0, end-offset)

	for _, id := range ids[offset:end] {
		if subscriber, ok := r.p.subscribers[id]; ok {
			page = append(page, copySubscriber(subscriber))
		}
	}

	return page, nil
}

type campaignRepo struct{ p *Persistence }

func (r *campaignRepo) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	campaign, ok := r.p.campaigns[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetByID", "campaign", id, persistence.ErrCampaignNotFound)
	}

	clone := *campaign

	return &clone, nil
}

func (r *campaignRepo) Save(_ context.Context, campaign *models.Campaign) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.campaigns[campaign.ID] = campaign

	return nil
}

func (r *campaignRepo) Update(_ context.Context, campaign *models.Campaign) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.campaigns[campaign.ID]; !ok {
		return persistence.NewRepositoryError("Update", "campaign", campaign.ID, persistence.ErrCampaignNotFound)
	}

	clone := *campaign
	r.p.campaigns[campaign.ID] = &clone

	return nil
}

type usageRepo struct{ p *Persistence }

func (r *usageRepo) Append(_ context.Context, record models.UsageRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.usage = append(r.p.usage, record)

	return nil
}

func (r *usageRepo) CountInWindow(_ context.Context, scope persistence.UsageScope, windowStart time.Time) (int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	count := 0

	for _, record := range r.p.usage {
		if record.Timestamp.Before(windowStart) {
			continue
		}

		if scope.TenantID != "" && record.TenantID != scope.TenantID {
			continue
		}

		if scope.APIKeyID != "" && record.APIKeyID != scope.APIKeyID {
			continue
		}

		if scope.IPAddress != "" && record.IPAddress != scope.IPAddress {
			continue
		}

		if scope.Endpoint != "" && record.Endpoint != scope.Endpoint {
			continue
		}

		count++
	}

	return count, nil
}

type analyticsRepo struct{ p *Persistence }

func (r *analyticsRepo) AppendEvent(_ context.Context, event models.AnalyticsEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.events = append(r.p.events, event)

	return nil
}

// Events returns all ingested analytics events, oldest first. Test helper.
func (p *Persistence) Events() []models.AnalyticsEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]models.AnalyticsEvent(nil), p.events...)
}
