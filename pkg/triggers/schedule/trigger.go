// Package schedule provides the cron trigger source: on each tick it enters
// every member of a list into an automation.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/triggers"
	"github.com/robfig/cron/v3"
)

const pageSize = 200

type Config struct {
	CronExpr     string
	AutomationID string
	ListID       string
}

type Trigger struct {
	cfg      Config
	lists    persistence.ListRepository
	cron     *cron.Cron
	callback triggers.Callback
	logger   *slog.Logger
}

func NewTrigger(cfg Config, lists persistence.ListRepository, logger *slog.Logger) (*Trigger, error) {
	if cfg.CronExpr == "" {
		return nil, errors.New("schedule trigger cron expression is required")
	}

	if cfg.AutomationID == "" {
		return nil, errors.New("schedule trigger automation id is required")
	}

	if cfg.ListID == "" {
		return nil, errors.New("schedule trigger list id is required")
	}

	if _, err := cron.ParseStandard(cfg.CronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Trigger{
		cfg:   cfg,
		lists: lists,
		logger: logger.With(
			"module", "schedule_trigger",
			"cron", cfg.CronExpr,
			"automation_id", cfg.AutomationID,
			"list_id", cfg.ListID,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	t.logger.InfoContext(ctx, "Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := t.cron.AddFunc(t.cfg.CronExpr, t.run); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	t.cron.Start()

	return nil
}

// run pages through the list and fires one trigger event per member.
func (t *Trigger) run() {
	ctx := context.Background()

	t.logger.InfoContext(ctx, "Schedule fired")

	for offset := 0; ; offset += pageSize {
		page, err := t.lists.MembersPage(ctx, t.cfg.ListID, offset, pageSize)
		if err != nil {
			t.logger.ErrorContext(ctx, "Failed to load list members", "offset", offset, "error", err)

			return
		}

		for _, subscriber := range page {
			event := triggers.TriggerEvent{
				AutomationID: t.cfg.AutomationID,
				SubscriberID: subscriber.ID,
			}

			if err := t.callback(ctx, event); err != nil {
				t.logger.ErrorContext(ctx, "Error starting execution for trigger",
					"subscriber_id", subscriber.ID,
					"error", err,
				)
			}
		}

		if len(page) < pageSize {
			return
		}
	}
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
