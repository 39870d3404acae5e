package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailgrove/mailgrove/pkg/eventbus"
	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/mailgrove/mailgrove/pkg/workflow"
)

// Execution exposes execution lifecycle control: start, pause, resume,
// cancel, and the reconstructed timeline.
type Execution struct {
	persist persistence.Persistence
	engine  *workflow.Engine
	queues  *queue.Service
	bus     eventbus.EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewExecution(persist persistence.Persistence, engine *workflow.Engine, queues *queue.Service, bus eventbus.EventPublisher, logger *slog.Logger) *Execution {
	return &Execution{
		persist: persist,
		engine:  engine,
		queues:  queues,
		bus:     bus,
		logger:  logger.With("module", "execution_service"),
		now:     time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Execution) HealthCheck(ctx context.Context) (string, bool) {
	if s.persist == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persist.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Start creates a new execution and enqueues its first step.
func (s *Execution) Start(ctx context.Context, automationID, subscriberID string) (string, error) {
	id, err := s.engine.StartExecution(ctx, automationID, subscriberID)
	if err != nil {
		return "", &ServiceError{Op: "start_execution", Err: err}
	}

	return id, nil
}

// Get returns one execution by id.
func (s *Execution) Get(ctx context.Context, id string) (*models.AutomationExecution, error) {
	return s.persist.Executions().GetByID(ctx, id)
}

// Pause suspends forward progress. The in-flight job, if any, observes the
// status at its next invocation and no-ops; history is preserved.
func (s *Execution) Pause(ctx context.Context, id string) error {
	execution, err := s.persist.Executions().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusRunning && execution.Status != models.ExecutionStatusPending {
		return &ServiceError{Op: "pause_execution", Err: ErrExecutionNotPausable}
	}

	execution.Status = models.ExecutionStatusPaused
	if err := s.persist.Executions().Update(ctx, execution); err != nil {
		return err
	}

	s.publish(ctx, id, events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, execution.TenantID),
		ExecutionID: id,
	})

	s.logger.InfoContext(ctx, "Execution paused", "execution_id", id)

	return nil
}

// Resume restarts a paused execution at its current node, re-applying
// whatever remains of an interrupted delay. Bumping the continuation epoch
// invalidates any job queued before the pause, so exactly one live
// continuation exists per execution afterwards.
func (s *Execution) Resume(ctx context.Context, id string) error {
	execution, err := s.persist.Executions().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return &ServiceError{Op: "resume_execution", Err: ErrExecutionNotResumable}
	}

	var delay time.Duration
	if execution.NextRunAt != nil {
		if remaining := execution.NextRunAt.Sub(s.now()); remaining > 0 {
			delay = remaining
		}
	}

	execution.Status = models.ExecutionStatusRunning
	execution.ContinuationEpoch++

	if err := s.persist.Executions().Update(ctx, execution); err != nil {
		return err
	}

	_, err = s.queues.AddAutomationJob(ctx, &queue.AutomationJob{
		ExecutionID:  execution.ID,
		AutomationID: execution.AutomationID,
		SubscriberID: execution.SubscriberID,
		TenantID:     execution.TenantID,
		NodeID:       execution.CurrentNodeID,
		Epoch:        execution.ContinuationEpoch,
	}, delay)
	if err != nil {
		return err
	}

	s.publish(ctx, id, events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.TenantID),
		ExecutionID: id,
	})

	s.logger.InfoContext(ctx, "Execution resumed", "execution_id", id, "node_id", execution.CurrentNodeID)

	return nil
}

// Cancel halts an execution for good. Unlike pause there is no way back.
func (s *Execution) Cancel(ctx context.Context, id string) error {
	execution, err := s.persist.Executions().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		return &ServiceError{Op: "cancel_execution", Err: ErrExecutionNotCancelable}
	}

	completed := s.now()
	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = &completed

	if err := s.persist.Executions().Update(ctx, execution); err != nil {
		return err
	}

	s.publish(ctx, id, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.TenantID),
		ExecutionID: id,
	})

	s.logger.InfoContext(ctx, "Execution cancelled", "execution_id", id)

	return nil
}

// Timeline reconstructs the display-ready step list for an execution.
func (s *Execution) Timeline(ctx context.Context, id string) ([]workflow.TimelineStep, error) {
	execution, err := s.persist.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	automation, err := s.persist.Automations().GetByID(ctx, execution.AutomationID)
	if err != nil {
		return nil, err
	}

	if err := automation.Compile(); err != nil {
		return nil, &ServiceError{Op: "execution_timeline", Err: err}
	}

	return workflow.BuildTimeline(automation, execution), nil
}

func (s *Execution) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
