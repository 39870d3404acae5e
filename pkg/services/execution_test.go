package services

import (
	"context"
	"testing"
	"time"

	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/mailgrove/mailgrove/pkg/mocks"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence/memory"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
	"github.com/mailgrove/mailgrove/pkg/testutil"
	"github.com/mailgrove/mailgrove/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executionFixture struct {
	persist *memory.Persistence
	queues  *queue.Service
	bus     *mocks.CapturingPublisher
	engine  *workflow.Engine
	service *Execution
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()

	persist := memory.NewPersistence()
	queues := queue.NewService(testLogger())
	limiter := ratelimit.NewLimiter(persist.Usage(), ratelimit.Config{})
	executor := workflow.NewStepExecutor(persist, queues, limiter, testLogger())
	bus := &mocks.CapturingPublisher{}
	engine := workflow.NewEngine(persist, queues, executor, bus, testLogger())

	return &executionFixture{
		persist: persist,
		queues:  queues,
		bus:     bus,
		engine:  engine,
		service: NewExecution(persist, engine, queues, bus, testLogger()),
	}
}

func (f *executionFixture) seedExecution(t *testing.T, status models.ExecutionStatus) *models.AutomationExecution {
	t.Helper()

	execution := &models.AutomationExecution{
		ID:            "e-1",
		AutomationID:  "a-1",
		SubscriberID:  "s-1",
		TenantID:      "tenant-1",
		Status:        status,
		CurrentNodeID: "n-email",
	}
	require.NoError(t, f.persist.Executions().Create(context.Background(), execution))

	return execution
}

func TestExecution_Start(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	subscriber := testutil.CreateTestSubscriber()
	automation := testutil.CreateLinearAutomation("tenant-1",
		testutil.CreateTestNode("n-trigger", models.NodeTypeTrigger, nil),
		testutil.CreateTestNode("n-delay", models.NodeTypeDelay, map[string]any{"duration": 1, "unit": "days"}),
	)
	require.NoError(t, f.persist.Automations().Save(ctx, automation))
	require.NoError(t, f.persist.Subscribers().Save(ctx, subscriber))

	id, err := f.service.Start(ctx, automation.ID, subscriber.ID)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	execution, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Equal(t, "n-trigger", execution.CurrentNodeID)

	// The first continuation is on the automation queue, undelayed.
	assert.Equal(t, 1, f.queues.Automation().Counts().Waiting)
}

func TestExecution_Start_UnknownAutomation(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Start(context.Background(), "a-missing", "s-1")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)
	f.seedExecution(t, models.ExecutionStatusRunning)

	require.NoError(t, f.service.Pause(ctx, "e-1"))

	execution, err := f.service.Get(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)

	// Resume re-enqueues a continuation at the node the pause parked on,
	// because the paused one no-opped instead of continuing the chain.
	require.NoError(t, f.service.Resume(ctx, "e-1"))

	execution, err = f.service.Get(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, 1, f.queues.Automation().Counts().Waiting)

	assert.Equal(t, []events.EventType{
		events.ExecutionPausedEvent,
		events.ExecutionResumedEvent,
	}, f.bus.TypesSeen())
}

// One live continuation per execution: a job queued before a pause is
// superseded by Resume and must no-op, never re-execute its node.
func TestExecution_Resume_SupersedesQueuedContinuation(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	automation := testutil.CreateLinearAutomation("tenant-1",
		testutil.CreateTestNode("n-trigger", models.NodeTypeTrigger, nil),
		testutil.CreateTestNode("n-email", models.NodeTypeEmail, map[string]any{"subject": "Hi"}),
	)
	automation.ID = "a-1"
	subscriber := testutil.CreateTestSubscriber(func(s *models.Subscriber) { s.ID = "s-1" })
	require.NoError(t, f.persist.Automations().Save(ctx, automation))
	require.NoError(t, f.persist.Subscribers().Save(ctx, subscriber))
	f.seedExecution(t, models.ExecutionStatusRunning)

	// The continuation that was in flight when the user hit pause.
	stale := &queue.Job{
		ID:    "job-stale",
		Queue: queue.QueueAutomation,
		Payload: &queue.AutomationJob{
			ExecutionID:  "e-1",
			AutomationID: "a-1",
			SubscriberID: "s-1",
			TenantID:     "tenant-1",
			NodeID:       "n-email",
			Epoch:        0,
		},
		MaxAttempts: 3,
	}

	require.NoError(t, f.service.Pause(ctx, "e-1"))
	require.NoError(t, f.service.Resume(ctx, "e-1"))

	// The stale job fires after the resume: it must not send the email or
	// advance the chain.
	require.NoError(t, f.engine.HandleAutomationJob(ctx, stale))
	assert.Equal(t, 0, f.queues.Email().Counts().Waiting)

	execution, err := f.service.Get(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, execution.Log)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, 1, execution.ContinuationEpoch)

	// The continuation Resume enqueued carries the bumped epoch and runs
	// the node exactly once.
	fresh := &queue.Job{
		ID:    "job-fresh",
		Queue: queue.QueueAutomation,
		Payload: &queue.AutomationJob{
			ExecutionID:  "e-1",
			AutomationID: "a-1",
			SubscriberID: "s-1",
			TenantID:     "tenant-1",
			NodeID:       "n-email",
			Epoch:        1,
		},
		MaxAttempts: 3,
	}
	require.NoError(t, f.engine.HandleAutomationJob(ctx, fresh))

	assert.Equal(t, 1, f.queues.Email().Counts().Waiting)

	execution, err = f.service.Get(ctx, "e-1")
	require.NoError(t, err)
	require.Len(t, execution.Log, 1)
	assert.Equal(t, "n-email", execution.Log[0].NodeID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

// Pausing inside a delay keeps the unserved part of the wait: resume enqueues
// the continuation delayed by what was left, not immediately.
func TestExecution_Resume_KeepsRemainingDelay(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return base }

	due := base.Add(45 * time.Minute)
	execution := &models.AutomationExecution{
		ID:            "e-1",
		AutomationID:  "a-1",
		SubscriberID:  "s-1",
		TenantID:      "tenant-1",
		Status:        models.ExecutionStatusPaused,
		CurrentNodeID: "n-email",
		NextRunAt:     &due,
	}
	require.NoError(t, f.persist.Executions().Create(ctx, execution))

	require.NoError(t, f.service.Resume(ctx, "e-1"))

	assert.Equal(t, 0, f.queues.Automation().Counts().Waiting)
	assert.Equal(t, 1, f.queues.Automation().Counts().Delayed)
}

// A NextRunAt already in the past resumes without any residual wait.
func TestExecution_Resume_ElapsedDelayRunsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	due := time.Now().Add(-time.Minute)
	execution := &models.AutomationExecution{
		ID:            "e-1",
		AutomationID:  "a-1",
		SubscriberID:  "s-1",
		TenantID:      "tenant-1",
		Status:        models.ExecutionStatusPaused,
		CurrentNodeID: "n-email",
		NextRunAt:     &due,
	}
	require.NoError(t, f.persist.Executions().Create(ctx, execution))

	require.NoError(t, f.service.Resume(ctx, "e-1"))

	assert.Equal(t, 1, f.queues.Automation().Counts().Waiting)
	assert.Equal(t, 0, f.queues.Automation().Counts().Delayed)
}

func TestExecution_Pause_Conflicts(t *testing.T) {
	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusPaused,
		models.ExecutionStatusCancelled,
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newExecutionFixture(t)
			f.seedExecution(t, status)

			err := f.service.Pause(context.Background(), "e-1")
			require.ErrorIs(t, err, ErrExecutionNotPausable)
			assert.True(t, IsConflictError(err))
		})
	}
}

func TestExecution_Resume_Conflicts(t *testing.T) {
	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusPending,
		models.ExecutionStatusRunning,
		models.ExecutionStatusCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newExecutionFixture(t)
			f.seedExecution(t, status)

			err := f.service.Resume(context.Background(), "e-1")
			require.ErrorIs(t, err, ErrExecutionNotResumable)
			assert.True(t, IsConflictError(err))
		})
	}
}

func TestExecution_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)
	f.seedExecution(t, models.ExecutionStatusRunning)

	require.NoError(t, f.service.Cancel(ctx, "e-1"))

	execution, err := f.service.Get(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.NotNil(t, execution.CompletedAt)

	// Cancelled is final: no resume, no second cancel of a finished run.
	err = f.service.Resume(ctx, "e-1")
	assert.ErrorIs(t, err, ErrExecutionNotResumable)
}

func TestExecution_Cancel_AlreadyTerminal(t *testing.T) {
	f := newExecutionFixture(t)
	f.seedExecution(t, models.ExecutionStatusCompleted)

	err := f.service.Cancel(context.Background(), "e-1")
	require.ErrorIs(t, err, ErrExecutionNotCancelable)
	assert.True(t, IsConflictError(err))
}

func TestExecution_Timeline(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	automation := testutil.CreateLinearAutomation("tenant-1",
		testutil.CreateTestNode("n-trigger", models.NodeTypeTrigger, nil),
		testutil.CreateTestNode("n-email", models.NodeTypeEmail, map[string]any{"subject": "Hi"}),
		testutil.CreateTestNode("n-delay", models.NodeTypeDelay, map[string]any{"duration": 2, "unit": "hours"}),
	)
	automation.ID = "a-1"
	require.NoError(t, f.persist.Automations().Save(ctx, automation))

	startedAt := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	execution := &models.AutomationExecution{
		ID:            "e-1",
		AutomationID:  "a-1",
		TenantID:      "tenant-1",
		Status:        models.ExecutionStatusRunning,
		CurrentNodeID: "n-delay",
		Log: []models.StepRecord{
			{NodeID: "n-trigger", NodeType: models.NodeTypeTrigger, Status: models.StepStatusCompleted, StartedAt: startedAt},
			{NodeID: "n-email", NodeType: models.NodeTypeEmail, Status: models.StepStatusCompleted, StartedAt: startedAt},
		},
	}
	require.NoError(t, f.persist.Executions().Create(ctx, execution))

	steps, err := f.service.Timeline(ctx, "e-1")
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, "n-email", steps[0].NodeID)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "n-delay", steps[1].NodeID)
	assert.Equal(t, models.StepStatusPending, steps[1].Status)
}

func TestExecution_Timeline_NotFound(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Timeline(context.Background(), "e-missing")
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_HealthCheck(t *testing.T) {
	f := newExecutionFixture(t)

	message, healthy := f.service.HealthCheck(context.Background())
	assert.True(t, healthy)
	assert.Contains(t, message, "healthy")
}
