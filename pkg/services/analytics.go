package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
)

// Analytics ingests fire-and-forget events (sends, opens, clicks) through the
// analytics queue into the store.
type Analytics struct {
	persist persistence.Persistence
	queues  *queue.Service
	logger  *slog.Logger
	now     func() time.Time
}

func NewAnalytics(persist persistence.Persistence, queues *queue.Service, logger *slog.Logger) *Analytics {
	return &Analytics{
		persist: persist,
		queues:  queues,
		logger:  logger.With("module", "analytics_service"),
		now:     time.Now,
	}
}

// Attach registers the ingestion handler on the analytics queue. Must run
// before the queue service starts.
func (s *Analytics) Attach() {
	s.queues.Analytics().SetHandler(s.HandleAnalyticsJob)
}

// Track enqueues one event. Missing id and timestamp are filled in here.
func (s *Analytics) Track(ctx context.Context, event models.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	_, err := s.queues.AddAnalyticsJob(ctx, &queue.AnalyticsJob{Event: event})

	return err
}

// HandleAnalyticsJob appends one event to the store.
func (s *Analytics) HandleAnalyticsJob(ctx context.Context, job *queue.Job) error {
	payload, ok := job.Payload.(*queue.AnalyticsJob)
	if !ok {
		return fmt.Errorf("analytics job %s carries unexpected payload", job.ID)
	}

	return s.persist.Analytics().AppendEvent(ctx, payload.Event)
}
