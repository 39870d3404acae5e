package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// AutomationStatus represents the lifecycle state of an automation definition.
type AutomationStatus string

const (
	AutomationStatusDraft    AutomationStatus = "draft"    // Editable, not executable
	AutomationStatusActive   AutomationStatus = "active"   // Executable
	AutomationStatusPaused   AutomationStatus = "paused"   // Not accepting new executions
	AutomationStatusArchived AutomationStatus = "archived" // Historical
)

// WorkflowStep is the legacy ordered representation of an automation. Older
// tenants stored a flat step list instead of a node graph; Compile converts
// it into the canonical graph so the engine and timeline have one code path.
type WorkflowStep struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`
}

// Automation is a tenant's workflow definition: a directed graph of nodes
// connected by optionally condition-guarded edges.
type Automation struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"   validate:"required"`
	Name        string           `json:"name"        validate:"required,min=3"`
	Status      AutomationStatus `json:"status"`
	Nodes       []*WorkflowNode  `json:"nodes"`
	Connections []*Connection    `json:"connections"`
	Steps       []*WorkflowStep  `json:"steps,omitempty"` // legacy representation
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	compiled bool
}

var validate = validator.New()

// Compile normalizes and validates the graph once at load time: the legacy
// step list is adapted into nodes and connections, raw per-node config maps
// are parsed into their typed forms, and structural rules are enforced.
// The engine refuses to run uncompiled automations.
func (a *Automation) Compile() error {
	if a.compiled {
		return nil
	}

	if len(a.Nodes) == 0 && len(a.Steps) > 0 {
		a.adoptLegacySteps()
	}

	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("automation %s: %w", a.ID, err)
	}

	if len(a.Nodes) == 0 {
		return fmt.Errorf("automation %s has no nodes", a.ID)
	}

	seen := make(map[string]bool, len(a.Nodes))

	for _, node := range a.Nodes {
		if err := validate.Struct(node); err != nil {
			return fmt.Errorf("automation %s: %w", a.ID, err)
		}

		if seen[node.ID] {
			return fmt.Errorf("automation %s: duplicate node id %s", a.ID, node.ID)
		}

		seen[node.ID] = true

		if err := parseNodeConfig(node); err != nil {
			return fmt.Errorf("automation %s: %w", a.ID, err)
		}
	}

	for _, conn := range a.Connections {
		if err := validate.Struct(conn); err != nil {
			return fmt.Errorf("automation %s: %w", a.ID, err)
		}

		if !seen[conn.SourceNodeID] || !seen[conn.TargetNodeID] {
			return fmt.Errorf("automation %s: connection %s references unknown node", a.ID, conn.ID)
		}

		target := a.NodeByID(conn.TargetNodeID)
		if target.Type == NodeTypeTrigger {
			return fmt.Errorf("automation %s: trigger node %s cannot have incoming connections", a.ID, target.ID)
		}
	}

	a.compiled = true

	return nil
}

// Compiled reports whether Compile has run successfully.
func (a *Automation) Compiled() bool {
	return a.compiled
}

// adoptLegacySteps converts the ordered step list into a linear node chain
// joined by unconditional edges.
func (a *Automation) adoptLegacySteps() {
	a.Nodes = make([]*WorkflowNode, 0, len(a.Steps))
	a.Connections = make([]*Connection, 0, len(a.Steps))

	for i, step := range a.Steps {
		a.Nodes = append(a.Nodes, &WorkflowNode{
			ID:     step.ID,
			Type:   step.Type,
			Label:  step.Label,
			Config: step.Config,
		})

		if i > 0 {
			a.Connections = append(a.Connections, &Connection{
				ID:           fmt.Sprintf("%s-%s", a.Steps[i-1].ID, step.ID),
				SourceNodeID: a.Steps[i-1].ID,
				TargetNodeID: step.ID,
				Kind:         ConnectionKindAlways,
			})
		}
	}
}

// NodeByID returns the node with the given id, or nil.
func (a *Automation) NodeByID(id string) *WorkflowNode {
	for _, node := range a.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodeIndex returns the declaration-order index of a node, or -1.
func (a *Automation) NodeIndex(id string) int {
	for i, node := range a.Nodes {
		if node.ID == id {
			return i
		}
	}

	return -1
}

// EntryNode returns the first trigger node, falling back to the first node
// for graphs whose trigger lives outside the stored definition.
func (a *Automation) EntryNode() *WorkflowNode {
	for _, node := range a.Nodes {
		if node.Type == NodeTypeTrigger {
			return node
		}
	}

	if len(a.Nodes) > 0 {
		return a.Nodes[0]
	}

	return nil
}

// Outgoing returns the outgoing connections of a node in declaration order.
func (a *Automation) Outgoing(nodeID string) []*Connection {
	var out []*Connection

	for _, conn := range a.Connections {
		if conn.SourceNodeID == nodeID {
			out = append(out, conn)
		}
	}

	return out
}
