package cmd

import (
	"context"
	"log/slog"

	"github.com/mailgrove/mailgrove/pkg/eventbus"
	"github.com/mailgrove/mailgrove/pkg/mailer"
	"github.com/mailgrove/mailgrove/pkg/mailer/logmailer"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
	"github.com/mailgrove/mailgrove/pkg/services"
	"github.com/mailgrove/mailgrove/pkg/workflow"
)

// RuntimeConfig carries the process-level wiring options.
type RuntimeConfig struct {
	ServiceName string
	DatabaseURL string
	EventBus    string
	RateLimit   ratelimit.Config
	Sender      mailer.Sender
}

// Runtime is the assembled process: persistence, the four queues with their
// handlers attached, the engine, and the application services. Both the API
// and the worker entrypoints boot one of these; the in-process queues mean
// every process that enqueues also processes.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Queues      *queue.Service
	Limiter     *ratelimit.Limiter
	Engine      *workflow.Engine
	Executions  *services.Execution
	Campaigns   *services.Campaign
	Analytics   *services.Analytics
	Delivery    *services.Delivery

	logger *slog.Logger
}

func NewRuntime(cfg RuntimeConfig, logger *slog.Logger) *Runtime {
	persist := NewPersistence(cfg.DatabaseURL)
	bus := NewEventBus(cfg.EventBus, cfg.ServiceName, logger)
	queues := queue.NewService(logger)
	limiter := ratelimit.NewLimiter(persist.Usage(), cfg.RateLimit)

	sender := cfg.Sender
	if sender == nil {
		sender = logmailer.NewSender(logger)
	}

	executor := workflow.NewStepExecutor(persist, queues, limiter, logger)
	engine := workflow.NewEngine(persist, queues, executor, bus, logger)

	r := &Runtime{
		Persistence: persist,
		EventBus:    bus,
		Queues:      queues,
		Limiter:     limiter,
		Engine:      engine,
		Executions:  services.NewExecution(persist, engine, queues, bus, logger),
		Campaigns:   services.NewCampaign(persist, queues, bus, logger),
		Analytics:   services.NewAnalytics(persist, queues, logger),
		Delivery:    services.NewDelivery(sender, queues, logger),
		logger:      logger.With("module", "runtime"),
	}

	r.Engine.Attach()
	r.Campaigns.Attach()
	r.Analytics.Attach()
	r.Delivery.Attach()

	return r
}

// Start launches the queue worker pools.
func (r *Runtime) Start(ctx context.Context) error {
	return r.Queues.Start(ctx)
}

// Stop drains the queues and closes external collaborators.
func (r *Runtime) Stop(ctx context.Context) error {
	if err := r.Queues.Stop(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to stop queues", "error", err)
	}

	if err := r.EventBus.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	return r.Persistence.Close(ctx)
}
