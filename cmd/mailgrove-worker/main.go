// Package main provides the Mailgrove worker: queue processors plus trigger
// sources.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/cmd"
	"github.com/mailgrove/mailgrove/pkg/log"
	"github.com/mailgrove/mailgrove/pkg/otelhelper"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "mailgrove-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to process automation, email, campaign and analytics jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "trigger-redis-addr",
				Usage:   "Redis address for the queue trigger source (disabled if empty)",
				Value:   "",
				Sources: cli.EnvVars("TRIGGER_REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "trigger-queue",
				Usage:   "Redis list name the queue trigger source consumes",
				Value:   "mailgrove:triggers",
				Sources: cli.EnvVars("TRIGGER_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "triggers-config",
				Usage:   "Path to the YAML file configuring trigger sources (optional)",
				Value:   "",
				Sources: cli.EnvVars("TRIGGERS_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "tenant-emails-per-minute",
				Usage:   "Per-tenant email sends allowed per minute (0 disables)",
				Value:   60,
				Sources: cli.EnvVars("TENANT_EMAILS_PER_MINUTE"),
			},
			&cli.IntFlag{
				Name:    "tenant-emails-per-hour",
				Usage:   "Per-tenant email sends allowed per hour (0 disables)",
				Value:   1000,
				Sources: cli.EnvVars("TENANT_EMAILS_PER_HOUR"),
			},
			&cli.IntFlag{
				Name:    "tenant-emails-per-day",
				Usage:   "Per-tenant email sends allowed per day (0 disables)",
				Value:   10000,
				Sources: cli.EnvVars("TENANT_EMAILS_PER_DAY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing export",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "mailgrove-worker"); err != nil {
					return err
				}
			}

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("mailgrove-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Mailgrove worker")

			runtime := cmd.NewRuntime(cmd.RuntimeConfig{
				ServiceName: "mailgrove-worker",
				DatabaseURL: command.String("database-url"),
				EventBus:    command.String("event-bus"),
				RateLimit: ratelimit.Config{
					TenantPerMinute: command.Int("tenant-emails-per-minute"),
					TenantPerHour:   command.Int("tenant-emails-per-hour"),
					TenantPerDay:    command.Int("tenant-emails-per-day"),
				},
			}, logger)

			worker := NewWorkerManager(
				workerID,
				runtime,
				command.String("trigger-redis-addr"),
				command.String("trigger-queue"),
				command.String("triggers-config"),
				logger,
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
