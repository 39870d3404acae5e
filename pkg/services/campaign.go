package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mailgrove/mailgrove/pkg/eventbus"
	"github.com/mailgrove/mailgrove/pkg/events"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/personalization"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/queue"
)

// DefaultBatchSize is the recipient page size when a campaign does not set
// its own.
const DefaultBatchSize = 100

// Campaign sends one campaign to a whole list in paged batches. Each batch is
// one campaign job; the handler fans out email jobs for its page and then
// re-enqueues itself with the offset advanced — a continuation message chain,
// not a loop holding a worker.
type Campaign struct {
	persist persistence.Persistence
	queues  *queue.Service
	bus     eventbus.EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewCampaign(persist persistence.Persistence, queues *queue.Service, bus eventbus.EventPublisher, logger *slog.Logger) *Campaign {
	return &Campaign{
		persist: persist,
		queues:  queues,
		bus:     bus,
		logger:  logger.With("module", "campaign_service"),
		now:     time.Now,
	}
}

// Attach registers the campaign handler on the campaign queue. Must run
// before the queue service starts.
func (s *Campaign) Attach() {
	s.queues.Campaign().SetHandler(s.HandleCampaignJob)
	s.queues.Campaign().OnFailure(s.handleJobExhausted)
}

// Start moves a campaign to SENDING and enqueues its first batch.
func (s *Campaign) Start(ctx context.Context, campaignID string) error {
	campaign, err := s.persist.Campaigns().GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusScheduled {
		return &ServiceError{Op: "start_campaign", Err: ErrCampaignNotStartable}
	}

	campaign.Status = models.CampaignStatusSending
	if err := s.persist.Campaigns().Update(ctx, campaign); err != nil {
		return err
	}

	batchSize := campaign.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	_, err = s.queues.AddCampaignJob(ctx, &queue.CampaignJob{
		CampaignID: campaign.ID,
		TenantID:   campaign.TenantID,
		BatchSize:  batchSize,
		Offset:     0,
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Campaign started", "campaign_id", campaign.ID, "batch_size", batchSize)

	return nil
}

// HandleCampaignJob processes one recipient page: enqueue one email job per
// recipient, then either continue with the next page or mark the campaign
// SENT when the page came back short.
func (s *Campaign) HandleCampaignJob(ctx context.Context, job *queue.Job) error {
	payload, ok := job.Payload.(*queue.CampaignJob)
	if !ok {
		return backoff.Permanent(&ServiceError{Op: "handle_campaign_job", Err: ErrCampaignNotFound})
	}

	campaign, err := s.persist.Campaigns().GetByID(ctx, payload.CampaignID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	if campaign.Status != models.CampaignStatusSending {
		s.logger.InfoContext(ctx, "Campaign not sending, skipping batch",
			"campaign_id", campaign.ID,
			"status", campaign.Status,
		)

		return nil
	}

	job.SetProgress(10)

	page, err := s.persist.Lists().MembersPage(ctx, campaign.ListID, payload.Offset, payload.BatchSize)
	if err != nil {
		if persistence.IsNotFound(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	for i, subscriber := range page {
		_, err := s.queues.AddEmailJob(ctx, &queue.EmailJob{
			TenantID:     campaign.TenantID,
			SubscriberID: subscriber.ID,
			To:           subscriber.Email,
			ToName:       subscriber.FirstName,
			FromName:     campaign.FromName,
			Subject:      personalization.Render(campaign.Subject, subscriber, nil),
			Content:      personalization.Render(campaign.Content, subscriber, nil),
			CampaignID:   campaign.ID,
		}, nil)
		if err != nil {
			return err
		}

		job.SetProgress(10 + 80*(i+1)/len(page))
	}

	if len(page) == payload.BatchSize {
		_, err := s.queues.AddCampaignJob(ctx, &queue.CampaignJob{
			CampaignID: payload.CampaignID,
			TenantID:   payload.TenantID,
			BatchSize:  payload.BatchSize,
			Offset:     payload.Offset + payload.BatchSize,
		})
		if err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "Campaign batch enqueued",
			"campaign_id", campaign.ID,
			"next_offset", payload.Offset+payload.BatchSize,
		)

		return nil
	}

	return s.finish(ctx, campaign, payload.Offset+len(page))
}

func (s *Campaign) finish(ctx context.Context, campaign *models.Campaign, recipients int) error {
	sent := s.now()
	campaign.Status = models.CampaignStatusSent
	campaign.SentAt = &sent

	if err := s.persist.Campaigns().Update(ctx, campaign); err != nil {
		return err
	}

	if s.bus != nil {
		event := events.CampaignSent{
			BaseEvent:  events.NewBaseEvent(events.CampaignSentEvent, campaign.TenantID),
			CampaignID: campaign.ID,
			Recipients: recipients,
		}

		if err := s.bus.Publish(ctx, campaign.ID, event); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Campaign sent", "campaign_id", campaign.ID, "recipients", recipients)

	return nil
}

// handleJobExhausted marks a campaign FAILED once a batch has burned all its
// attempts.
func (s *Campaign) handleJobExhausted(ctx context.Context, job *queue.Job, cause error) {
	payload, ok := job.Payload.(*queue.CampaignJob)
	if !ok {
		return
	}

	campaign, err := s.persist.Campaigns().GetByID(ctx, payload.CampaignID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load campaign for failure marking",
			"campaign_id", payload.CampaignID,
			"error", err,
		)

		return
	}

	if campaign.Status != models.CampaignStatusSending {
		return
	}

	campaign.Status = models.CampaignStatusFailed
	if err := s.persist.Campaigns().Update(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist campaign failure",
			"campaign_id", campaign.ID,
			"error", err,
		)

		return
	}

	s.logger.ErrorContext(ctx, "Campaign failed", "campaign_id", campaign.ID, "error", cause)
}
