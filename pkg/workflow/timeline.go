package workflow

import (
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
)

// TimelineStep is one display-ready entry of a reconstructed execution
// timeline.
type TimelineStep struct {
	NodeID     string            `json:"node_id"`
	Label      string            `json:"label"`
	NodeType   models.NodeType   `json:"node_type"`
	Status     models.StepStatus `json:"status"`
	ExecutedAt *time.Time        `json:"executed_at,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Data       map[string]any    `json:"data,omitempty"`
}

// BuildTimeline replays an execution's step log against the graph and
// produces the ordered step list in node declaration order. Trigger nodes
// never render.
//
// Status inference: a logged node takes its latest log entry; the node at
// CurrentNodeID is pending; a node declared at or before the last executed
// node is inferred completed even without a log entry. That last rule is a
// fallback for executions recorded before per-step logging and can
// misclassify conditional branches that were skipped, not visited.
func BuildTimeline(automation *models.Automation, execution *models.AutomationExecution) []TimelineStep {
	latest := make(map[string]*models.StepRecord, len(execution.Log))
	for i := range execution.Log {
		rec := &execution.Log[i]
		latest[rec.NodeID] = rec
	}

	lastIndex := -1
	if last := execution.LastExecutedNode(); last != "" {
		lastIndex = automation.NodeIndex(last)
	}

	steps := make([]TimelineStep, 0, len(automation.Nodes))

	for i, node := range automation.Nodes {
		if node.Type == models.NodeTypeTrigger {
			continue
		}

		step := TimelineStep{
			NodeID:   node.ID,
			Label:    node.Label,
			NodeType: node.Type,
		}

		switch {
		case latest[node.ID] != nil:
			rec := latest[node.ID]
			step.Status = rec.Status
			executedAt := rec.StartedAt
			step.ExecutedAt = &executedAt
			step.DurationMs = rec.DurationMs
			step.Error = rec.Error
			step.Data = rec.Data

		case node.ID == execution.CurrentNodeID:
			step.Status = models.StepStatusPending

		case lastIndex >= 0 && i <= lastIndex:
			step.Status = models.StepStatusCompleted

		default:
			// Not reached yet; nothing to render.
			continue
		}

		steps = append(steps, step)
	}

	return steps
}
