package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailgrove/mailgrove/pkg/cmd"
	"github.com/mailgrove/mailgrove/pkg/config"
	"github.com/mailgrove/mailgrove/pkg/triggers"
	queuetrigger "github.com/mailgrove/mailgrove/pkg/triggers/queue"
	scheduletrigger "github.com/mailgrove/mailgrove/pkg/triggers/schedule"
)

const shutdownTimeout = 30 * time.Second

// WorkerManager runs the queue processors and the trigger sources until the
// process receives a termination signal.
type WorkerManager struct {
	id      string
	runtime *cmd.Runtime
	sources []triggers.Source
	logger  *slog.Logger

	triggerRedisAddr   string
	triggerQueue       string
	triggersConfigPath string
}

func NewWorkerManager(id string, runtime *cmd.Runtime, triggerRedisAddr, triggerQueue, triggersConfigPath string, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:                 id,
		runtime:            runtime,
		logger:             logger.With("module", "worker_manager", "worker_id", id),
		triggerRedisAddr:   triggerRedisAddr,
		triggerQueue:       triggerQueue,
		triggersConfigPath: triggersConfigPath,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.runtime.Start(ctx); err != nil {
		return err
	}

	if err := w.startSources(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return w.shutdown()
}

// startSources assembles trigger sources from the CLI flags and, when given,
// the YAML triggers file. Flags win over the file for the Redis queue source.
func (w *WorkerManager) startSources(ctx context.Context) error {
	queueCfg := queuetrigger.Config{
		Addr:  w.triggerRedisAddr,
		Queue: w.triggerQueue,
	}

	var schedules []config.ScheduleConfig

	if w.triggersConfigPath != "" {
		file, err := config.LoadTriggerConfig(w.triggersConfigPath)
		if err != nil {
			return err
		}

		if queueCfg.Addr == "" {
			queueCfg = queuetrigger.Config{
				Addr:     file.Queue.Addr,
				Password: file.Queue.Password,
				DB:       file.Queue.DB,
				Queue:    file.Queue.Queue,
			}
		}

		schedules = file.Schedules
	}

	if queueCfg.Addr != "" {
		source, err := queuetrigger.NewTrigger(queueCfg, w.logger)
		if err != nil {
			return err
		}

		w.sources = append(w.sources, source)
	}

	for _, schedule := range schedules {
		source, err := scheduletrigger.NewTrigger(scheduletrigger.Config{
			CronExpr:     schedule.Cron,
			AutomationID: schedule.AutomationID,
			ListID:       schedule.ListID,
		}, w.runtime.Persistence.Lists(), w.logger)
		if err != nil {
			return err
		}

		w.sources = append(w.sources, source)
	}

	for _, source := range w.sources {
		if err := source.Start(ctx, w.startExecution); err != nil {
			return err
		}
	}

	return nil
}

func (w *WorkerManager) startExecution(ctx context.Context, event triggers.TriggerEvent) error {
	executionID, err := w.runtime.Executions.Start(ctx, event.AutomationID, event.SubscriberID)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Execution started from trigger",
		"execution_id", executionID,
		"automation_id", event.AutomationID,
		"subscriber_id", event.SubscriberID,
	)

	return nil
}

func (w *WorkerManager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, source := range w.sources {
		if err := source.Stop(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to stop trigger source", "error", err)
		}
	}

	return w.runtime.Stop(ctx)
}
