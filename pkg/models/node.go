// Package models defines the core domain models for graph-based marketing automations.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// NodeType represents the kind of work a workflow node performs.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeEmail     NodeType = "email"
	NodeTypeWait      NodeType = "wait" // same semantics as delay
)

// IsValid checks whether the node type is one of the supported kinds.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeTrigger, NodeTypeAction, NodeTypeCondition, NodeTypeDelay, NodeTypeEmail, NodeTypeWait:
		return true
	default:
		return false
	}
}

// ActionType selects the behavior of an action node.
type ActionType string

const (
	ActionSendEmail      ActionType = "send_email"
	ActionAddToList      ActionType = "add_to_list"
	ActionRemoveFromList ActionType = "remove_from_list"
	ActionUpdateField    ActionType = "update_field"
)

// WorkflowNode represents a node instance in an automation graph.
//
// Config holds the raw editor-supplied key/value map. Automation.Compile
// parses it into exactly one of the typed configs below; after compilation
// the raw map is never consulted again.
type WorkflowNode struct {
	ID     string         `json:"id"    validate:"required"`
	Type   NodeType       `json:"type"  validate:"required"`
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`

	Action    *ActionConfig    `json:"-"`
	Condition *ConditionConfig `json:"-"`
	Delay     *DelayConfig     `json:"-"`
	Email     *EmailConfig     `json:"-"`
}

// ConnectionKind guards which branch an edge belongs to.
type ConnectionKind string

const (
	ConnectionKindAlways      ConnectionKind = "always"
	ConnectionKindConditional ConnectionKind = "conditional"
)

// Connection is a directed edge between two nodes of the same graph.
type Connection struct {
	ID           string         `json:"id"`
	SourceNodeID string         `json:"source_node_id" validate:"required"`
	TargetNodeID string         `json:"target_node_id" validate:"required"`
	SourceHandle string         `json:"source_handle,omitempty"`
	TargetHandle string         `json:"target_handle,omitempty"`
	Kind         ConnectionKind `json:"kind"`
}

// IsConditional reports whether the edge is taken on a true condition result.
// An empty kind is treated as "always".
func (c *Connection) IsConditional() bool {
	return c.Kind == ConnectionKindConditional
}

// ActionConfig is the typed configuration of an action node.
type ActionConfig struct {
	Type       ActionType
	ListID     string
	FieldName  string
	FieldValue string
	Email      *EmailConfig
}

// ConditionConfig is the typed configuration of a condition node.
type ConditionConfig struct {
	Field    string
	Operator string
	Value    string
}

// DelayConfig is the typed configuration of a delay or wait node.
type DelayConfig struct {
	Duration int64
	Unit     string
}

// Wait returns the configured pause. Unknown units fall back to minutes.
func (c *DelayConfig) Wait() time.Duration {
	var unit time.Duration

	switch c.Unit {
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	case "weeks":
		unit = 7 * 24 * time.Hour
	case "minutes":
		unit = time.Minute
	default:
		unit = time.Minute
	}

	return time.Duration(c.Duration) * unit
}

// EmailConfig is the typed configuration of an email node or send_email action.
// Subject and Content may contain {{mergeTag}} tokens.
type EmailConfig struct {
	Subject  string
	Content  string
	FromName string
}

// parseNodeConfig populates the typed config for a node from its raw map.
func parseNodeConfig(node *WorkflowNode) error {
	switch node.Type {
	case NodeTypeTrigger:
		return nil
	case NodeTypeAction:
		cfg, err := parseActionConfig(node.Config)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		node.Action = cfg
	case NodeTypeCondition:
		cfg, err := parseConditionConfig(node.Config)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		node.Condition = cfg
	case NodeTypeDelay, NodeTypeWait:
		cfg, err := parseDelayConfig(node.Config)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		node.Delay = cfg
	case NodeTypeEmail:
		cfg, err := parseEmailConfig(node.Config)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		node.Email = cfg
	default:
		return fmt.Errorf("node %s: unknown node type %q", node.ID, node.Type)
	}

	return nil
}

func parseActionConfig(raw map[string]any) (*ActionConfig, error) {
	actionType := ActionType(stringValue(raw, "actionType"))

	cfg := &ActionConfig{Type: actionType}

	switch actionType {
	case ActionSendEmail:
		email, err := parseEmailConfig(raw)
		if err != nil {
			return nil, err
		}

		cfg.Email = email
	case ActionAddToList, ActionRemoveFromList:
		cfg.ListID = stringValue(raw, "listId")
		if cfg.ListID == "" {
			return nil, fmt.Errorf("action %s requires listId", actionType)
		}
	case ActionUpdateField:
		cfg.FieldName = stringValue(raw, "fieldName")
		cfg.FieldValue = stringValue(raw, "fieldValue")

		if cfg.FieldName == "" {
			return nil, fmt.Errorf("action %s requires fieldName", actionType)
		}
	default:
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}

	return cfg, nil
}

func parseConditionConfig(raw map[string]any) (*ConditionConfig, error) {
	cfg := &ConditionConfig{
		Field:    stringValue(raw, "field"),
		Operator: stringValue(raw, "operator"),
		Value:    stringValue(raw, "value"),
	}

	if cfg.Field == "" {
		return nil, fmt.Errorf("condition requires field")
	}

	if cfg.Operator == "" {
		return nil, fmt.Errorf("condition requires operator")
	}

	return cfg, nil
}

func parseDelayConfig(raw map[string]any) (*DelayConfig, error) {
	duration, ok := int64Value(raw, "duration")
	if !ok || duration < 1 {
		return nil, fmt.Errorf("delay requires a positive duration")
	}

	return &DelayConfig{
		Duration: duration,
		Unit:     stringValue(raw, "unit"),
	}, nil
}

func parseEmailConfig(raw map[string]any) (*EmailConfig, error) {
	cfg := &EmailConfig{
		Subject:  stringValue(raw, "subject"),
		Content:  stringValue(raw, "content"),
		FromName: stringValue(raw, "fromName"),
	}

	if cfg.Subject == "" {
		return nil, fmt.Errorf("email requires subject")
	}

	return cfg, nil
}

func stringValue(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}

	value, _ := raw[key].(string)

	return value
}

// int64Value reads a numeric config value. JSON decoding yields float64,
// hand-built maps may carry int or string.
func int64Value(raw map[string]any, key string) (int64, bool) {
	if raw == nil {
		return 0, false
	}

	switch v := raw[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}
