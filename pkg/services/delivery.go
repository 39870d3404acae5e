package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/mailer"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/queue"
)

// Delivery drains the email queue into the outbound transport. A transport
// rejection is a transient error: the job's own backoff policy retries it.
type Delivery struct {
	sender mailer.Sender
	queues *queue.Service
	logger *slog.Logger
	now    func() time.Time
}

func NewDelivery(sender mailer.Sender, queues *queue.Service, logger *slog.Logger) *Delivery {
	return &Delivery{
		sender: sender,
		queues: queues,
		logger: logger.With("module", "delivery_service"),
		now:    time.Now,
	}
}

// Attach registers the delivery handler on the email queue. Must run before
// the queue service starts.
func (s *Delivery) Attach() {
	s.queues.Email().SetHandler(s.HandleEmailJob)
}

// HandleEmailJob sends one message through the transport and records a
// fire-and-forget analytics event on acceptance.
func (s *Delivery) HandleEmailJob(ctx context.Context, job *queue.Job) error {
	payload, ok := job.Payload.(*queue.EmailJob)
	if !ok {
		return fmt.Errorf("email job %s carries unexpected payload", job.ID)
	}

	job.SetProgress(20)

	result, err := s.sender.Send(ctx, &mailer.Message{
		To:       payload.To,
		ToName:   payload.ToName,
		FromName: payload.FromName,
		Subject:  payload.Subject,
		Content:  payload.Content,
	}, payload.TenantID)
	if err != nil {
		return fmt.Errorf("send to %s: %w", payload.To, err)
	}

	if !result.Success {
		return fmt.Errorf("send to %s rejected: %s", payload.To, result.Error)
	}

	job.SetProgress(80)

	_, err = s.queues.AddAnalyticsJob(ctx, &queue.AnalyticsJob{
		Event: models.AnalyticsEvent{
			ID:           uuid.New().String(),
			TenantID:     payload.TenantID,
			Kind:         "email.sent",
			SubscriberID: payload.SubscriberID,
			CampaignID:   payload.CampaignID,
			ExecutionID:  payload.ExecutionID,
			Data:         map[string]any{"message_id": result.MessageID},
			Timestamp:    s.now(),
		},
	})
	if err != nil {
		// A lost analytics event never blocks delivery.
		s.logger.WarnContext(ctx, "Failed to enqueue analytics event", "error", err)
	}

	s.logger.InfoContext(ctx, "Email sent",
		"to", payload.To,
		"tenant_id", payload.TenantID,
		"message_id", result.MessageID,
	)

	return nil
}
