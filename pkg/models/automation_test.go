package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAutomation() *Automation {
	return &Automation{
		ID:       "a-1",
		TenantID: "t-1",
		Name:     "Welcome Series",
		Status:   AutomationStatusActive,
		Nodes: []*WorkflowNode{
			{ID: "n-trigger", Type: NodeTypeTrigger},
			{ID: "n-email", Type: NodeTypeEmail, Config: map[string]any{"subject": "Welcome {{firstName}}", "content": "Hi"}},
			{ID: "n-delay", Type: NodeTypeDelay, Config: map[string]any{"duration": 2, "unit": "hours"}},
		},
		Connections: []*Connection{
			{ID: "c-1", SourceNodeID: "n-trigger", TargetNodeID: "n-email", Kind: ConnectionKindAlways},
			{ID: "c-2", SourceNodeID: "n-email", TargetNodeID: "n-delay", Kind: ConnectionKindAlways},
		},
	}
}

func TestAutomation_Compile(t *testing.T) {
	automation := validAutomation()

	require.NoError(t, automation.Compile())
	assert.True(t, automation.Compiled())

	// Typed configs are populated during compilation.
	email := automation.NodeByID("n-email")
	require.NotNil(t, email.Email)
	assert.Equal(t, "Welcome {{firstName}}", email.Email.Subject)

	delay := automation.NodeByID("n-delay")
	require.NotNil(t, delay.Delay)
	assert.Equal(t, 2*time.Hour, delay.Delay.Wait())

	// Compile is idempotent.
	require.NoError(t, automation.Compile())
}

func TestAutomation_Compile_DuplicateNodeID(t *testing.T) {
	automation := validAutomation()
	automation.Nodes = append(automation.Nodes, &WorkflowNode{ID: "n-email", Type: NodeTypeEmail, Config: map[string]any{"subject": "x"}})

	err := automation.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestAutomation_Compile_UnknownConnectionTarget(t *testing.T) {
	automation := validAutomation()
	automation.Connections = append(automation.Connections, &Connection{
		ID:           "c-bad",
		SourceNodeID: "n-delay",
		TargetNodeID: "n-missing",
	})

	err := automation.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references unknown node")
}

func TestAutomation_Compile_TriggerCannotHaveIncoming(t *testing.T) {
	automation := validAutomation()
	automation.Connections = append(automation.Connections, &Connection{
		ID:           "c-loop",
		SourceNodeID: "n-delay",
		TargetNodeID: "n-trigger",
	})

	err := automation.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot have incoming connections")
}

func TestAutomation_Compile_InvalidNodeConfig(t *testing.T) {
	automation := validAutomation()
	automation.Nodes[1].Config = map[string]any{} // email without subject

	err := automation.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email requires subject")
}

func TestAutomation_Compile_NoNodes(t *testing.T) {
	automation := &Automation{ID: "a-2", TenantID: "t-1", Name: "Empty"}

	err := automation.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no nodes")
}

func TestAutomation_Compile_AdoptsLegacySteps(t *testing.T) {
	automation := &Automation{
		ID:       "a-legacy",
		TenantID: "t-1",
		Name:     "Legacy Flow",
		Steps: []*WorkflowStep{
			{ID: "s-1", Type: NodeTypeTrigger},
			{ID: "s-2", Type: NodeTypeEmail, Config: map[string]any{"subject": "Hello"}},
			{ID: "s-3", Type: NodeTypeWait, Config: map[string]any{"duration": 1, "unit": "days"}},
		},
	}

	require.NoError(t, automation.Compile())

	// The ordered list becomes a linear chain of always edges.
	require.Len(t, automation.Nodes, 3)
	require.Len(t, automation.Connections, 2)
	assert.Equal(t, "s-1", automation.Connections[0].SourceNodeID)
	assert.Equal(t, "s-2", automation.Connections[0].TargetNodeID)
	assert.Equal(t, ConnectionKindAlways, automation.Connections[0].Kind)
	assert.Equal(t, "s-2", automation.Connections[1].SourceNodeID)
	assert.Equal(t, "s-3", automation.Connections[1].TargetNodeID)

	assert.Equal(t, "s-1", automation.EntryNode().ID)
}

func TestAutomation_Outgoing_DeclarationOrder(t *testing.T) {
	automation := validAutomation()
	automation.Nodes = append(automation.Nodes, &WorkflowNode{
		ID: "n-cond", Type: NodeTypeCondition,
		Config: map[string]any{"field": "status", "operator": "equals", "value": "active"},
	})
	automation.Connections = append(automation.Connections,
		&Connection{ID: "c-3", SourceNodeID: "n-delay", TargetNodeID: "n-cond"},
		&Connection{ID: "c-4", SourceNodeID: "n-delay", TargetNodeID: "n-email"},
	)

	require.NoError(t, automation.Compile())

	outgoing := automation.Outgoing("n-delay")
	require.Len(t, outgoing, 2)
	assert.Equal(t, "c-3", outgoing[0].ID)
	assert.Equal(t, "c-4", outgoing[1].ID)

	assert.Nil(t, automation.NodeByID("nope"))
	assert.Equal(t, -1, automation.NodeIndex("nope"))
	assert.Equal(t, 2, automation.NodeIndex("n-delay"))
}

func TestAutomation_EntryNode_FallsBackToFirstNode(t *testing.T) {
	automation := &Automation{
		ID:       "a-3",
		TenantID: "t-1",
		Name:     "No Trigger",
		Nodes: []*WorkflowNode{
			{ID: "n-1", Type: NodeTypeEmail, Config: map[string]any{"subject": "x"}},
		},
	}

	require.NoError(t, automation.Compile())
	assert.Equal(t, "n-1", automation.EntryNode().ID)
}
