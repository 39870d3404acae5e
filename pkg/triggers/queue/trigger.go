// Package queue provides the Redis-list trigger source: external systems
// LPUSH trigger events, the worker BLPOPs them into executions.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailgrove/mailgrove/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
)

const popTimeout = 5 * time.Second

type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

type Trigger struct {
	cfg      Config
	client   redis.UniversalClient
	callback triggers.Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewTrigger(cfg Config, logger *slog.Logger) (*Trigger, error) {
	if cfg.Queue == "" {
		return nil, errors.New("queue trigger queue name is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	return &Trigger{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", cfg.Queue,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	t.logger.InfoContext(ctx, "Starting queue trigger")
	t.callback = callback

	t.client = redis.NewClient(&redis.Options{
		Addr:     t.cfg.Addr,
		Password: t.cfg.Password,
		DB:       t.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := t.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t.logger.InfoContext(ctx, "Connected to Redis", "addr", t.cfg.Addr, "db", t.cfg.DB)

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := t.pop(ctx); err != nil {
			t.logger.ErrorContext(ctx, "Failed to consume trigger message", "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (t *Trigger) pop(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.cfg.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var event triggers.TriggerEvent
	if err := json.Unmarshal([]byte(message), &event); err != nil {
		t.logger.WarnContext(ctx, "Discarding malformed trigger message", "message", message)

		return nil
	}

	if event.AutomationID == "" || event.SubscriberID == "" {
		t.logger.WarnContext(ctx, "Discarding incomplete trigger message", "message", message)

		return nil
	}

	go func() {
		if err := t.callback(ctx, event); err != nil {
			t.logger.ErrorContext(ctx, "Error starting execution for trigger",
				"automation_id", event.AutomationID,
				"subscriber_id", event.SubscriberID,
				"error", err,
			)
		}
	}()

	return nil
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping queue trigger")

	close(t.stopCh)
	t.wg.Wait()

	if t.client != nil {
		if err := t.client.Close(); err != nil {
			t.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
