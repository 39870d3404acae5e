package models

import "time"

// ExecutionStatus represents the lifecycle state of an automation execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the execution has finished for good.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Halted reports whether forward progress is suspended by an external actor.
// Halted executions keep their history; jobs picking them up must no-op.
func (s ExecutionStatus) Halted() bool {
	return s == ExecutionStatusPaused || s == ExecutionStatusCancelled
}

// StepStatus is the recorded outcome of one node invocation.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusPending   StepStatus = "pending"
)

// StepRecord is one entry of an execution's append-only step log.
type StepRecord struct {
	NodeID     string         `json:"node_id"`
	NodeType   NodeType       `json:"node_type"`
	Status     StepStatus     `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// AutomationExecution tracks one subscriber's run through one automation
// graph. The step log and the variables map are kept separate on purpose:
// the log is display/audit data, the variables feed merge-tag resolution.
//
// ContinuationEpoch versions the continuation chain: a queued automation job
// is only live while its epoch matches the row's, and Resume bumps the epoch
// so whatever was queued before the pause no-ops. NextRunAt records when a
// delayed continuation is due, letting Resume re-apply the remaining wait.
type AutomationExecution struct {
	ID                string            `json:"id"`
	AutomationID      string            `json:"automation_id"`
	SubscriberID      string            `json:"subscriber_id"`
	TenantID          string            `json:"tenant_id"`
	Status            ExecutionStatus   `json:"status"`
	CurrentNodeID     string            `json:"current_node_id"`
	ContinuationEpoch int               `json:"continuation_epoch"`
	NextRunAt         *time.Time        `json:"next_run_at,omitempty"`
	Log               []StepRecord      `json:"log"`
	Variables         map[string]string `json:"variables,omitempty"`
	StepCount         int               `json:"step_count"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// AppendStep records one node invocation and bumps the step counter the
// engine's max-step guard is measured against.
func (e *AutomationExecution) AppendStep(rec StepRecord) {
	e.Log = append(e.Log, rec)
	e.StepCount++
}

// LastExecutedNode returns the node id of the most recent log entry, or "".
func (e *AutomationExecution) LastExecutedNode() string {
	if len(e.Log) == 0 {
		return ""
	}

	return e.Log[len(e.Log)-1].NodeID
}
