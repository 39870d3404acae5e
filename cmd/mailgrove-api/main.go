// Package main provides the Mailgrove API server.
package main

import (
	"context"
	"os"

	"github.com/mailgrove/mailgrove/pkg/cmd"
	"github.com/mailgrove/mailgrove/pkg/log"
	"github.com/mailgrove/mailgrove/pkg/otelhelper"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "mailgrove-api",
		EnableShellCompletion: true,
		Usage:                 "Start the REST API for executions, campaigns and queue operations",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
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
			&cli.IntFlag{
				Name:    "api-key-limit",
				Usage:   "Requests allowed per API key per minute (0 disables)",
				Value:   120,
				Sources: cli.EnvVars("API_KEY_LIMIT"),
			},
			&cli.IntFlag{
				Name:    "burst-limit",
				Usage:   "Requests allowed per tenant and IP per 10 seconds (0 disables)",
				Value:   30,
				Sources: cli.EnvVars("BURST_LIMIT"),
			},
			&cli.IntFlag{
				Name:    "tenant-per-minute",
				Usage:   "Requests allowed per tenant per minute (0 disables)",
				Value:   300,
				Sources: cli.EnvVars("TENANT_PER_MINUTE"),
			},
			&cli.IntFlag{
				Name:    "tenant-per-hour",
				Usage:   "Requests allowed per tenant per hour (0 disables)",
				Value:   5000,
				Sources: cli.EnvVars("TENANT_PER_HOUR"),
			},
			&cli.IntFlag{
				Name:    "tenant-per-day",
				Usage:   "Requests allowed per tenant per day (0 disables)",
				Value:   50000,
				Sources: cli.EnvVars("TENANT_PER_DAY"),
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
				if _, err := otelhelper.NewTracer(ctx, "mailgrove-api"); err != nil {
					return err
				}
			}

			logger := log.WithModule("mailgrove-api")

			logger.InfoContext(ctx, "Initializing Mailgrove API")

			runtime := cmd.NewRuntime(cmd.RuntimeConfig{
				ServiceName: "mailgrove-api",
				DatabaseURL: command.String("database-url"),
				EventBus:    command.String("event-bus"),
				RateLimit: ratelimit.Config{
					APIKeyLimit:     command.Int("api-key-limit"),
					BurstLimit:      command.Int("burst-limit"),
					TenantPerMinute: command.Int("tenant-per-minute"),
					TenantPerHour:   command.Int("tenant-per-hour"),
					TenantPerDay:    command.Int("tenant-per-day"),
				},
			}, logger)

			if err := runtime.Start(ctx); err != nil {
				return err
			}

			api := NewAPI(runtime, logger)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
