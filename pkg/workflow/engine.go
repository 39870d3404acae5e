package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/eventbus"
	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/otelhelper"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds step invocations per execution. Cyclic graphs are
// legal; this guard is what guarantees they still terminate.
const DefaultMaxSteps = 100

// Engine orchestrates graph traversal. Each automation job advances one
// execution by exactly one node, then re-enqueues a continuation naming the
// next node. At most one live job per execution: the continuation is only
// enqueued after the current step's state is persisted, and each job carries
// the execution's continuation epoch — a job whose epoch no longer matches
// (it was superseded by a resume) no-ops instead of re-executing its node.
type Engine struct {
	persist  persistence.Persistence
	queues   *queue.Service
	executor *StepExecutor
	bus      eventbus.EventPublisher
	logger   *slog.Logger
	tracer   trace.Tracer
	maxSteps int
	now      func() time.Time

	// enqueue is the continuation hook, replaceable in tests to drive
	// traversal synchronously.
	enqueue func(ctx context.Context, data *queue.AutomationJob, delay time.Duration) error
}

func NewEngine(persist persistence.Persistence, queues *queue.Service, executor *StepExecutor, bus eventbus.EventPublisher, logger *slog.Logger) *Engine {
	e := &Engine{
		persist:  persist,
		queues:   queues,
		executor: executor,
		bus:      bus,
		logger:   logger.With("module", "workflow_engine"),
		tracer:   otel.Tracer("mailgrove.workflow"),
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}

	e.enqueue = func(ctx context.Context, data *queue.AutomationJob, delay time.Duration) error {
		_, err := queues.AddAutomationJob(ctx, data, delay)

		return err
	}

	return e
}

// Attach registers the engine as the automation queue's handler. Must run
// before the queue service starts.
func (e *Engine) Attach() {
	e.queues.Automation().SetHandler(e.HandleAutomationJob)
	e.queues.Automation().OnFailure(e.handleJobExhausted)
}

// StartExecution creates a PENDING execution for the subscriber and enqueues
// the first automation job at the graph's entry node.
func (e *Engine) StartExecution(ctx context.Context, automationID, subscriberID string) (string, error) {
	automation, err := e.persist.Automations().GetByID(ctx, automationID)
	if err != nil {
		return "", err
	}

	if err := automation.Compile(); err != nil {
		return "", NewStepError("start_execution", "", fmt.Errorf("%w: %v", ErrNotCompiled, err))
	}

	subscriber, err := e.persist.Subscribers().GetByID(ctx, subscriberID)
	if err != nil {
		return "", err
	}

	entry := automation.EntryNode()
	if entry == nil {
		return "", NewStepError("start_execution", "", ErrNodeNotFound)
	}

	execution := &models.AutomationExecution{
		ID:            uuid.New().String(),
		AutomationID:  automation.ID,
		SubscriberID:  subscriber.ID,
		TenantID:      automation.TenantID,
		Status:        models.ExecutionStatusPending,
		CurrentNodeID: entry.ID,
		Variables:     make(map[string]string),
		CreatedAt:     e.now(),
	}

	if err := e.persist.Executions().Create(ctx, execution); err != nil {
		return "", err
	}

	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, execution.TenantID),
		ExecutionID:  execution.ID,
		AutomationID: automation.ID,
		SubscriberID: subscriber.ID,
	})

	err = e.enqueue(ctx, &queue.AutomationJob{
		ExecutionID:  execution.ID,
		AutomationID: automation.ID,
		SubscriberID: subscriber.ID,
		TenantID:     execution.TenantID,
		Epoch:        execution.ContinuationEpoch,
	}, 0)
	if err != nil {
		return "", err
	}

	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"automation_id", automation.ID,
		"subscriber_id", subscriber.ID,
	)

	return execution.ID, nil
}

// HandleAutomationJob processes one continuation: load state, short-circuit
// on halted executions, run the current node, persist the outcome, and either
// enqueue the next continuation or finalize the execution. Fatal errors come
// back wrapped backoff.Permanent so the queue fails the job without retrying.
func (e *Engine) HandleAutomationJob(ctx context.Context, job *queue.Job) error {
	payload, ok := job.Payload.(*queue.AutomationJob)
	if !ok {
		return backoff.Permanent(NewStepError("handle_automation_job", "", ErrInvalidNodeConfig))
	}

	logger := e.logger.With("execution_id", payload.ExecutionID, "job_id", job.ID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, payload.ExecutionID),
		attribute.String(otelhelper.AutomationIDKey, payload.AutomationID),
		attribute.String(otelhelper.TenantIDKey, payload.TenantID),
		attribute.String(otelhelper.NodeIDKey, payload.NodeID),
		attribute.String(otelhelper.JobIDKey, job.ID),
	)
	defer span.End()

	execution, err := e.persist.Executions().GetByID(ctx, payload.ExecutionID)
	if err != nil {
		return e.classify(ctx, payload, err)
	}

	// A stale continuation was superseded by Resume; executing it would put
	// two live jobs on the same execution. At most one continuation per
	// execution carries the current epoch.
	if payload.Epoch != execution.ContinuationEpoch {
		logger.InfoContext(ctx, "Stale continuation, skipping job",
			"job_epoch", payload.Epoch,
			"execution_epoch", execution.ContinuationEpoch,
		)

		return nil
	}

	// Pause/cancel is checked before any side effect. A halted execution
	// keeps its history and the chain simply stops: no re-enqueue.
	if execution.Status.Halted() || execution.Status.Terminal() {
		logger.InfoContext(ctx, "Execution not runnable, skipping job", "status", execution.Status)

		return nil
	}

	job.SetProgress(10)

	automation, err := e.persist.Automations().GetByID(ctx, payload.AutomationID)
	if err != nil {
		return e.classify(ctx, payload, err)
	}

	if err := automation.Compile(); err != nil {
		return e.classify(ctx, payload, NewStepError("handle_automation_job", "", fmt.Errorf("%w: %v", ErrNotCompiled, err)))
	}

	subscriber, err := e.persist.Subscribers().GetByID(ctx, payload.SubscriberID)
	if err != nil {
		return e.classify(ctx, payload, err)
	}

	node := automation.EntryNode()
	if payload.NodeID != "" {
		node = automation.NodeByID(payload.NodeID)
	}

	if node == nil {
		return e.classify(ctx, payload, NewStepError("handle_automation_job", payload.NodeID, ErrNodeNotFound))
	}

	if execution.StepCount >= e.maxSteps {
		return e.classify(ctx, payload, NewStepError("handle_automation_job", node.ID, ErrMaxStepsExceeded))
	}

	if execution.Status == models.ExecutionStatusPending {
		started := e.now()
		execution.Status = models.ExecutionStatusRunning
		execution.StartedAt = &started
	}

	job.SetProgress(30)

	startedAt := e.now()

	result, err := e.executor.Execute(ctx, &ExecutionContext{Execution: execution, Subscriber: subscriber}, node)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		)

		if IsFatal(err) {
			execution.AppendStep(models.StepRecord{
				NodeID:     node.ID,
				NodeType:   node.Type,
				Status:     models.StepStatusFailed,
				StartedAt:  startedAt,
				DurationMs: e.now().Sub(startedAt).Milliseconds(),
				Error:      err.Error(),
			})

			if updateErr := e.persist.Executions().Update(ctx, execution); updateErr != nil {
				logger.ErrorContext(ctx, "Failed to persist failed step", "error", updateErr)
			}

			return e.classify(ctx, payload, err)
		}

		// Transient: record where we are and let the job's backoff retry.
		// The execution stays RUNNING and no log entry is appended, so a
		// later successful attempt produces exactly one record.
		execution.CurrentNodeID = node.ID
		if updateErr := e.persist.Executions().Update(ctx, execution); updateErr != nil {
			logger.ErrorContext(ctx, "Failed to persist execution before retry", "error", updateErr)
		}

		logger.WarnContext(ctx, "Step failed, handing to retry policy", "node_id", node.ID, "error", err)

		return err
	}

	job.SetProgress(70)

	execution.AppendStep(models.StepRecord{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     models.StepStatusCompleted,
		StartedAt:  startedAt,
		DurationMs: e.now().Sub(startedAt).Milliseconds(),
		Data:       result.Data,
	})

	e.publish(ctx, execution.ID, events.NodeCompleted{
		BaseEvent:    events.NewBaseEvent(events.NodeCompletedEvent, execution.TenantID),
		ExecutionID:  execution.ID,
		AutomationID: automation.ID,
		NodeID:       node.ID,
		NodeType:     node.Type,
		Status:       models.StepStatusCompleted,
		DurationMs:   e.now().Sub(startedAt).Milliseconds(),
	})

	next := resolveNext(automation, node, result)
	if next == nil {
		return e.complete(ctx, execution)
	}

	execution.CurrentNodeID = next.ID

	execution.NextRunAt = nil
	if result.Delay > 0 {
		due := e.now().Add(result.Delay)
		execution.NextRunAt = &due
	}

	if err := e.persist.Executions().Update(ctx, execution); err != nil {
		return err
	}

	job.SetProgress(90)

	// Enqueue strictly after the update above lands: the one-in-flight-job
	// invariant per execution depends on this ordering.
	err = e.enqueue(ctx, &queue.AutomationJob{
		ExecutionID:  execution.ID,
		AutomationID: automation.ID,
		SubscriberID: subscriber.ID,
		TenantID:     execution.TenantID,
		NodeID:       next.ID,
		Epoch:        execution.ContinuationEpoch,
	}, result.Delay)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Step completed",
		"node_id", node.ID,
		"node_type", node.Type,
		"next_node_id", next.ID,
		"delay", result.Delay,
	)

	return nil
}

// resolveNext picks the outgoing edge. A condition verdict routes the branch:
// true prefers a conditional edge (falling back to declaration order), false
// only ever takes an always edge — a missing fallback terminates the
// execution rather than following the branch that just failed its guard.
func resolveNext(automation *models.Automation, node *models.WorkflowNode, result *StepResult) *models.WorkflowNode {
	outgoing := automation.Outgoing(node.ID)
	if len(outgoing) == 0 {
		return nil
	}

	if verdict, ok := result.Data[ConditionResultKey].(bool); ok {
		if verdict {
			for _, conn := range outgoing {
				if conn.IsConditional() {
					return automation.NodeByID(conn.TargetNodeID)
				}
			}

			return automation.NodeByID(outgoing[0].TargetNodeID)
		}

		for _, conn := range outgoing {
			if !conn.IsConditional() {
				return automation.NodeByID(conn.TargetNodeID)
			}
		}

		return nil
	}

	return automation.NodeByID(outgoing[0].TargetNodeID)
}

func (e *Engine) complete(ctx context.Context, execution *models.AutomationExecution) error {
	completed := e.now()
	execution.Status = models.ExecutionStatusCompleted
	execution.CurrentNodeID = ""
	execution.NextRunAt = nil
	execution.CompletedAt = &completed

	if err := e.persist.Executions().Update(ctx, execution); err != nil {
		return err
	}

	var duration time.Duration
	if execution.StartedAt != nil {
		duration = completed.Sub(*execution.StartedAt)
	}

	e.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionCompletedEvent, execution.TenantID),
		ExecutionID:  execution.ID,
		AutomationID: execution.AutomationID,
		Duration:     duration,
		StepCount:    execution.StepCount,
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"step_count", execution.StepCount,
	)

	return nil
}

// classify turns a fatal error into an immediate execution failure plus a
// permanent job error; transient errors pass through to the retry machinery.
func (e *Engine) classify(ctx context.Context, payload *queue.AutomationJob, err error) error {
	if !IsFatal(err) {
		return err
	}

	e.failExecution(ctx, payload.ExecutionID, err)

	return backoff.Permanent(err)
}

// handleJobExhausted runs when an automation job has burned all its attempts
// or failed permanently; only here does a transient error escalate to FAILED.
func (e *Engine) handleJobExhausted(ctx context.Context, job *queue.Job, err error) {
	payload, ok := job.Payload.(*queue.AutomationJob)
	if !ok {
		return
	}

	e.failExecution(ctx, payload.ExecutionID, err)
}

func (e *Engine) failExecution(ctx context.Context, executionID string, cause error) {
	execution, err := e.persist.Executions().GetByID(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load execution for failure marking",
			"execution_id", executionID,
			"error", err,
		)

		return
	}

	if execution.Status.Terminal() {
		return
	}

	completed := e.now()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = cause.Error()
	execution.CompletedAt = &completed

	if err := e.persist.Executions().Update(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist execution failure",
			"execution_id", executionID,
			"error", err,
		)

		return
	}

	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionFailedEvent, execution.TenantID),
		ExecutionID:  execution.ID,
		AutomationID: execution.AutomationID,
		Error:        cause.Error(),
	})

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"error", cause,
	)
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}
