package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/mailgrove/mailgrove/pkg/channels/gochannel"
	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []*events.ExecutionStarted
	)

	require.NoError(t, bus.Handle(events.ExecutionStartedEvent, func(_ context.Context, event any) error {
		started, ok := event.(*events.ExecutionStarted)
		require.True(t, ok)

		mu.Lock()
		received = append(received, started)
		mu.Unlock()

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, "tenant-1"),
		ExecutionID:  "e-1",
		AutomationID: "a-1",
		SubscriberID: "s-1",
	}
	require.NoError(t, bus.Publish(ctx, "e-1", event))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "e-1", received[0].ExecutionID)
	assert.Equal(t, "a-1", received[0].AutomationID)
	assert.Equal(t, "tenant-1", received[0].TenantID)
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu        sync.Mutex
		completed int
	)

	// Only completed events have a handler; the paused event must not block
	// the stream.
	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(context.Context, any) error {
		mu.Lock()
		completed++
		mu.Unlock()

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "e-1", events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, "tenant-1"),
		ExecutionID: "e-1",
	}))
	require.NoError(t, bus.Publish(ctx, "e-1", events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, "tenant-1"),
		ExecutionID: "e-1",
		StepCount:   3,
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return completed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
