// Package mocks provides testify mocks for the event bus boundary.
package mocks

import (
	"context"

	"github.com/mailgrove/mailgrove/pkg/eventbus"
	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of the eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// CapturingPublisher records every published event for assertions.
type CapturingPublisher struct {
	Events []eventbus.Event
	Keys   []string
}

func (p *CapturingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	p.Keys = append(p.Keys, key)
	p.Events = append(p.Events, event)

	return nil
}

// TypesSeen returns the event types in publish order.
func (p *CapturingPublisher) TypesSeen() []events.EventType {
	types := make([]events.EventType, 0, len(p.Events))
	for _, event := range p.Events {
		types = append(types, event.GetType())
	}

	return types
}
