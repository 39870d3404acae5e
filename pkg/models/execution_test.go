package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.False(t, ExecutionStatusPending.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.False(t, ExecutionStatusPaused.Terminal())
	assert.False(t, ExecutionStatusCancelled.Terminal())
}

func TestExecutionStatus_Halted(t *testing.T) {
	assert.True(t, ExecutionStatusPaused.Halted())
	assert.True(t, ExecutionStatusCancelled.Halted())
	assert.False(t, ExecutionStatusRunning.Halted())
	assert.False(t, ExecutionStatusCompleted.Halted())
}

func TestAutomationExecution_AppendStep(t *testing.T) {
	execution := &AutomationExecution{ID: "e-1"}

	assert.Empty(t, execution.LastExecutedNode())

	execution.AppendStep(StepRecord{NodeID: "n-1", Status: StepStatusCompleted})
	execution.AppendStep(StepRecord{NodeID: "n-2", Status: StepStatusFailed})

	assert.Equal(t, 2, execution.StepCount)
	assert.Equal(t, "n-2", execution.LastExecutedNode())
}

func TestSubscriber_Field(t *testing.T) {
	subscriber := &Subscriber{
		Email:        "ada@example.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Status:       SubscriberStatusActive,
		CustomFields: map[string]string{"plan": "pro"},
	}

	assert.Equal(t, "ada@example.com", subscriber.Field("email"))
	assert.Equal(t, "Ada", subscriber.Field("firstName"))
	assert.Equal(t, "Lovelace", subscriber.Field("lastName"))
	assert.Equal(t, "active", subscriber.Field("status"))
	assert.Equal(t, "pro", subscriber.Field("plan"))
	assert.Empty(t, subscriber.Field("company"))
}
