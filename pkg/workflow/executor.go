// Package workflow implements the graph execution engine: the per-node step
// executor, the orchestrator that advances executions through the queue, and
// the timeline reconstructor.
package workflow

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/personalization"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
)

// ConditionResultKey is the step-data key carrying a condition node's verdict.
// The engine reads it to pick the outgoing branch.
const ConditionResultKey = "condition_result"

// ExecutionContext carries everything one step invocation needs.
type ExecutionContext struct {
	Execution  *models.AutomationExecution
	Subscriber *models.Subscriber
}

// StepResult is the structured outcome of one node invocation. Delay is the
// pause the orchestrator must apply before the next step; Data is the
// side-channel (condition verdicts, queued message ids).
type StepResult struct {
	Success bool
	Delay   time.Duration
	Data    map[string]any
}

// StepExecutor evaluates a single workflow node. It performs the node's side
// effects but never touches execution state or graph traversal; that is the
// engine's job.
type StepExecutor struct {
	persist persistence.Persistence
	queues  *queue.Service
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewStepExecutor(persist persistence.Persistence, queues *queue.Service, limiter *ratelimit.Limiter, logger *slog.Logger) *StepExecutor {
	return &StepExecutor{
		persist: persist,
		queues:  queues,
		limiter: limiter,
		logger:  logger.With("module", "step_executor"),
		now:     time.Now,
	}
}

// Execute runs one node. Domain failures come back as errors classified by
// IsFatal; a condition's false verdict is a successful result, not an error.
func (x *StepExecutor) Execute(ctx context.Context, ec *ExecutionContext, node *models.WorkflowNode) (*StepResult, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		// Entry marker only; the trigger source already fired.
		return &StepResult{Success: true}, nil

	case models.NodeTypeAction:
		return x.executeAction(ctx, ec, node)

	case models.NodeTypeCondition:
		return x.executeCondition(ec, node)

	case models.NodeTypeDelay, models.NodeTypeWait:
		if node.Delay == nil {
			return nil, NewStepError("execute_delay", node.ID, ErrInvalidNodeConfig)
		}

		return &StepResult{Success: true, Delay: node.Delay.Wait()}, nil

	case models.NodeTypeEmail:
		if node.Email == nil {
			return nil, NewStepError("execute_email", node.ID, ErrInvalidNodeConfig)
		}

		return x.sendEmail(ctx, ec, node.ID, node.Email)

	default:
		return nil, NewStepError("execute", node.ID, ErrUnknownNodeType)
	}
}

func (x *StepExecutor) executeAction(ctx context.Context, ec *ExecutionContext, node *models.WorkflowNode) (*StepResult, error) {
	cfg := node.Action
	if cfg == nil {
		return nil, NewStepError("execute_action", node.ID, ErrInvalidNodeConfig)
	}

	switch cfg.Type {
	case models.ActionSendEmail:
		return x.sendEmail(ctx, ec, node.ID, cfg.Email)

	case models.ActionAddToList:
		return x.addToList(ctx, ec, node.ID, cfg.ListID)

	case models.ActionRemoveFromList:
		return x.removeFromList(ctx, ec, node.ID, cfg.ListID)

	case models.ActionUpdateField:
		err := x.persist.Subscribers().UpdateField(ctx, ec.Subscriber.ID, cfg.FieldName, cfg.FieldValue)
		if err != nil {
			return nil, NewStepError("update_field", node.ID, err)
		}

		ec.Subscriber.CustomFields = merged(ec.Subscriber.CustomFields, cfg.FieldName, cfg.FieldValue)

		return &StepResult{Success: true}, nil

	default:
		return nil, NewStepError("execute_action", node.ID, ErrUnknownActionType)
	}
}

// addToList is an idempotent set insert: membership is presence-checked so
// re-delivered jobs do not duplicate rows.
func (x *StepExecutor) addToList(ctx context.Context, ec *ExecutionContext, nodeID, listID string) (*StepResult, error) {
	if _, err := x.persist.Lists().GetByID(ctx, listID); err != nil {
		return nil, NewStepError("add_to_list", nodeID, err)
	}

	member, err := x.persist.Lists().IsMember(ctx, listID, ec.Subscriber.ID)
	if err != nil {
		return nil, NewStepError("add_to_list", nodeID, err)
	}

	if !member {
		if err := x.persist.Lists().AddMembership(ctx, listID, ec.Subscriber.ID); err != nil {
			return nil, NewStepError("add_to_list", nodeID, err)
		}
	}

	return &StepResult{Success: true, Data: map[string]any{"list_id": listID, "already_member": member}}, nil
}

func (x *StepExecutor) removeFromList(ctx context.Context, ec *ExecutionContext, nodeID, listID string) (*StepResult, error) {
	if _, err := x.persist.Lists().GetByID(ctx, listID); err != nil {
		return nil, NewStepError("remove_from_list", nodeID, err)
	}

	if err := x.persist.Lists().RemoveMembership(ctx, listID, ec.Subscriber.ID); err != nil {
		return nil, NewStepError("remove_from_list", nodeID, err)
	}

	return &StepResult{Success: true, Data: map[string]any{"list_id": listID}}, nil
}

// executeCondition is total: any unknown operator or missing field evaluates
// to false. Condition logic can route an execution but never abort it.
func (x *StepExecutor) executeCondition(ec *ExecutionContext, node *models.WorkflowNode) (*StepResult, error) {
	cfg := node.Condition
	if cfg == nil {
		return nil, NewStepError("execute_condition", node.ID, ErrInvalidNodeConfig)
	}

	verdict := EvaluateCondition(ec.Subscriber.Field(cfg.Field), cfg.Operator, cfg.Value)

	return &StepResult{
		Success: true,
		Data:    map[string]any{ConditionResultKey: verdict},
	}, nil
}

// EvaluateCondition applies one operator to a field value and a literal.
// Numeric operators parse both sides; a failed parse compares false.
func EvaluateCondition(fieldValue, operator, compareValue string) bool {
	switch operator {
	case "equals":
		return fieldValue == compareValue
	case "not_equals":
		return fieldValue != compareValue
	case "contains":
		return strings.Contains(fieldValue, compareValue)
	case "not_contains":
		return !strings.Contains(fieldValue, compareValue)
	case "starts_with":
		return strings.HasPrefix(fieldValue, compareValue)
	case "ends_with":
		return strings.HasSuffix(fieldValue, compareValue)
	case "is_empty":
		return fieldValue == ""
	case "is_not_empty":
		return fieldValue != ""
	case "greater_than":
		left, right, ok := parseNumericPair(fieldValue, compareValue)

		return ok && left > right
	case "less_than":
		left, right, ok := parseNumericPair(fieldValue, compareValue)

		return ok && left < right
	default:
		return false
	}
}

func parseNumericPair(a, b string) (float64, float64, bool) {
	left, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}

	right, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}

	return left, right, true
}

// sendEmail personalizes the message and places it on the email queue.
// Success means accepted into the queue, not delivered. The tenant rate gate
// runs first: a denial is a transient error so the owning job backs off and
// the execution stays RUNNING.
func (x *StepExecutor) sendEmail(ctx context.Context, ec *ExecutionContext, nodeID string, cfg *models.EmailConfig) (*StepResult, error) {
	if cfg == nil {
		return nil, NewStepError("send_email", nodeID, ErrInvalidNodeConfig)
	}

	exec := ec.Execution

	admission, err := x.limiter.CheckTenant(ctx, exec.TenantID)
	if err != nil {
		return nil, NewStepError("send_email", nodeID, err)
	}

	if !admission.Allowed {
		x.logger.WarnContext(ctx, "Email send denied by tenant rate limit",
			"tenant_id", exec.TenantID,
			"scope", admission.Scope,
			"retry_after", admission.RetryAfter,
		)

		return nil, NewStepError("send_email", nodeID, ErrRateLimited)
	}

	subject := personalization.Render(cfg.Subject, ec.Subscriber, exec.Variables)
	content := personalization.Render(cfg.Content, ec.Subscriber, exec.Variables)

	job, err := x.queues.AddEmailJob(ctx, &queue.EmailJob{
		TenantID:     exec.TenantID,
		SubscriberID: ec.Subscriber.ID,
		To:           ec.Subscriber.Email,
		ToName:       strings.TrimSpace(ec.Subscriber.FirstName + " " + ec.Subscriber.LastName),
		FromName:     cfg.FromName,
		Subject:      subject,
		Content:      content,
		ExecutionID:  exec.ID,
	}, nil)
	if err != nil {
		return nil, NewStepError("send_email", nodeID, err)
	}

	if err := x.persist.Usage().Append(ctx, models.UsageRecord{
		TenantID:  exec.TenantID,
		Endpoint:  "email.send",
		Timestamp: x.now(),
	}); err != nil {
		return nil, NewStepError("send_email", nodeID, err)
	}

	return &StepResult{Success: true, Data: map[string]any{"email_job_id": job.ID}}, nil
}

func merged(fields map[string]string, key, value string) map[string]string {
	if fields == nil {
		fields = make(map[string]string)
	}

	fields[key] = value

	return fields
}
