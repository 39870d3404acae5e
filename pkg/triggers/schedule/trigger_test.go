package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence/memory"
	"github.com/mailgrove/mailgrove/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seedList(t *testing.T, memberCount int) *memory.Persistence {
	t.Helper()

	ctx := context.Background()
	persist := memory.NewPersistence()
	require.NoError(t, persist.Lists().Save(ctx, &models.List{ID: "list-1", TenantID: "tenant-1", Name: "News"}))

	for i := 0; i < memberCount; i++ {
		id := fmt.Sprintf("s-%03d", i)
		require.NoError(t, persist.Subscribers().Save(ctx, &models.Subscriber{
			ID:       id,
			TenantID: "tenant-1",
			Email:    id + "@example.com",
		}))
		require.NoError(t, persist.Lists().AddMembership(ctx, "list-1", id))
	}

	return persist
}

func TestNewTrigger_Validation(t *testing.T) {
	persist := memory.NewPersistence()

	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"missing cron", Config{AutomationID: "a-1", ListID: "list-1"}, "cron expression is required"},
		{"missing automation", Config{CronExpr: "@daily", ListID: "list-1"}, "automation id is required"},
		{"missing list", Config{CronExpr: "@daily", AutomationID: "a-1"}, "list id is required"},
		{"bad cron", Config{CronExpr: "not a cron", AutomationID: "a-1", ListID: "list-1"}, "invalid cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrigger(tt.cfg, persist.Lists(), testLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTrigger_Run_FiresPerMember(t *testing.T) {
	persist := seedList(t, 3)

	trigger, err := NewTrigger(Config{
		CronExpr:     "0 9 * * 1",
		AutomationID: "a-welcome",
		ListID:       "list-1",
	}, persist.Lists(), testLogger())
	require.NoError(t, err)

	var fired []triggers.TriggerEvent

	trigger.callback = func(_ context.Context, event triggers.TriggerEvent) error {
		fired = append(fired, event)

		return nil
	}

	trigger.run()

	require.Len(t, fired, 3)
	for i, event := range fired {
		assert.Equal(t, "a-welcome", event.AutomationID)
		assert.Equal(t, fmt.Sprintf("s-%03d", i), event.SubscriberID)
	}
}

func TestTrigger_Run_PagesPastPageSize(t *testing.T) {
	persist := seedList(t, pageSize+5)

	trigger, err := NewTrigger(Config{
		CronExpr:     "@hourly",
		AutomationID: "a-digest",
		ListID:       "list-1",
	}, persist.Lists(), testLogger())
	require.NoError(t, err)

	var fired int

	trigger.callback = func(context.Context, triggers.TriggerEvent) error {
		fired++

		return nil
	}

	trigger.run()

	assert.Equal(t, pageSize+5, fired)
}

func TestTrigger_Run_CallbackErrorDoesNotAbort(t *testing.T) {
	persist := seedList(t, 4)

	trigger, err := NewTrigger(Config{
		CronExpr:     "@daily",
		AutomationID: "a-welcome",
		ListID:       "list-1",
	}, persist.Lists(), testLogger())
	require.NoError(t, err)

	var fired []string

	trigger.callback = func(_ context.Context, event triggers.TriggerEvent) error {
		fired = append(fired, event.SubscriberID)
		if event.SubscriberID == "s-001" {
			return errors.New("execution refused")
		}

		return nil
	}

	trigger.run()

	// The failing member is logged and skipped, the rest still fire.
	assert.Equal(t, []string{"s-000", "s-001", "s-002", "s-003"}, fired)
}

func TestTrigger_Run_UnknownListStops(t *testing.T) {
	persist := memory.NewPersistence()

	trigger, err := NewTrigger(Config{
		CronExpr:     "@daily",
		AutomationID: "a-welcome",
		ListID:       "list-missing",
	}, persist.Lists(), testLogger())
	require.NoError(t, err)

	var fired int

	trigger.callback = func(context.Context, triggers.TriggerEvent) error {
		fired++

		return nil
	}

	trigger.run()

	assert.Zero(t, fired)
}

func TestTrigger_StartAndStop(t *testing.T) {
	persist := seedList(t, 1)

	trigger, err := NewTrigger(Config{
		CronExpr:     "0 9 * * 1",
		AutomationID: "a-welcome",
		ListID:       "list-1",
	}, persist.Lists(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, trigger.Start(ctx, func(context.Context, triggers.TriggerEvent) error {
		return nil
	}))
	require.NoError(t, trigger.Stop(ctx))
}
