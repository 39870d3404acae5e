package services

import (
	"context"
	"testing"
	"time"

	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence/memory"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalytics_Track_FillsDefaults(t *testing.T) {
	persist := memory.NewPersistence()
	queues := queue.NewService(testLogger())
	service := NewAnalytics(persist, queues, testLogger())

	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	require.NoError(t, service.Track(context.Background(), models.AnalyticsEvent{
		TenantID: "tenant-1",
		Kind:     "email.opened",
	}))

	assert.Equal(t, 1, queues.Analytics().Counts().Waiting)
}

func TestAnalytics_Track_KeepsExplicitValues(t *testing.T) {
	persist := memory.NewPersistence()
	queues := queue.NewService(testLogger())
	service := NewAnalytics(persist, queues, testLogger())

	stamp := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	require.NoError(t, service.Track(context.Background(), models.AnalyticsEvent{
		ID:        "evt-1",
		TenantID:  "tenant-1",
		Kind:      "email.clicked",
		Timestamp: stamp,
	}))

	// Round-trip through the handler and verify nothing got overwritten.
	require.NoError(t, service.HandleAnalyticsJob(context.Background(), &queue.Job{
		ID:      "job-1",
		Payload: &queue.AnalyticsJob{Event: models.AnalyticsEvent{ID: "evt-1", TenantID: "tenant-1", Kind: "email.clicked", Timestamp: stamp}},
	}))

	events := persist.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, stamp, events[0].Timestamp)
}

func TestAnalytics_HandleAnalyticsJob(t *testing.T) {
	persist := memory.NewPersistence()
	queues := queue.NewService(testLogger())
	service := NewAnalytics(persist, queues, testLogger())

	require.NoError(t, service.HandleAnalyticsJob(context.Background(), &queue.Job{
		ID: "job-1",
		Payload: &queue.AnalyticsJob{Event: models.AnalyticsEvent{
			ID:       "evt-1",
			TenantID: "tenant-1",
			Kind:     "email.sent",
		}},
	}))

	require.Len(t, persist.Events(), 1)

	err := service.HandleAnalyticsJob(context.Background(), &queue.Job{ID: "job-2", Payload: 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
}
