// Package testutil provides test data builders shared across package tests.
package testutil

import (
	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/models"
)

// CreateTestSubscriber creates an active subscriber with default values that
// can be overridden.
func CreateTestSubscriber(overrides ...func(*models.Subscriber)) *models.Subscriber {
	subscriber := &models.Subscriber{
		ID:        uuid.New().String(),
		TenantID:  "tenant-1",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Status:    models.SubscriberStatusActive,
		CustomFields: map[string]string{
			"plan": "pro",
		},
	}

	for _, override := range overrides {
		override(subscriber)
	}

	return subscriber
}

// WithStatus sets the subscriber status.
func WithStatus(status models.SubscriberStatus) func(*models.Subscriber) {
	return func(s *models.Subscriber) {
		s.Status = status
	}
}

// WithCustomField sets one custom field.
func WithCustomField(key, value string) func(*models.Subscriber) {
	return func(s *models.Subscriber) {
		if s.CustomFields == nil {
			s.CustomFields = make(map[string]string)
		}

		s.CustomFields[key] = value
	}
}

// CreateTestNode creates a workflow node with default values that can be
// overridden.
func CreateTestNode(id string, nodeType models.NodeType, config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:     id,
		Type:   nodeType,
		Label:  "Test " + string(nodeType),
		Config: config,
	}
}

// CreateLinearAutomation builds an automation whose nodes are chained in
// order with unconditional edges.
func CreateLinearAutomation(tenantID string, nodes ...*models.WorkflowNode) *models.Automation {
	automation := &models.Automation{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     "Test Automation",
		Status:   models.AutomationStatusActive,
		Nodes:    nodes,
	}

	for i := 1; i < len(nodes); i++ {
		automation.Connections = append(automation.Connections, &models.Connection{
			ID:           nodes[i-1].ID + "-" + nodes[i].ID,
			SourceNodeID: nodes[i-1].ID,
			TargetNodeID: nodes[i].ID,
			Kind:         models.ConnectionKindAlways,
		})
	}

	return automation
}
