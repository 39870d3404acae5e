package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// The four logical queues and their worker-concurrency ceilings.
const (
	QueueAutomation = "automation"
	QueueEmail      = "email"
	QueueCampaign   = "campaign"
	QueueAnalytics  = "analytics"

	automationConcurrency = 20
	emailConcurrency      = 10
	campaignConcurrency   = 5
	analyticsConcurrency  = 50

	analyticsAttempts = 5
)

// Service owns the four named queues. It is constructed once per process and
// injected wherever jobs are enqueued; nothing reaches it as global state.
type Service struct {
	queues map[string]*Queue
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	s := &Service{
		queues: make(map[string]*Queue),
		logger: logger.With("module", "queue_service"),
		now:    time.Now,
	}

	for _, cfg := range []Config{
		{Name: QueueAutomation, Concurrency: automationConcurrency},
		{Name: QueueEmail, Concurrency: emailConcurrency},
		{Name: QueueCampaign, Concurrency: campaignConcurrency},
		{Name: QueueAnalytics, Concurrency: analyticsConcurrency},
	} {
		s.queues[cfg.Name] = New(cfg, logger)
	}

	return s
}

// Queue returns a named queue.
func (s *Service) Queue(name string) (*Queue, error) {
	q, ok := s.queues[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", name)
	}

	return q, nil
}

func (s *Service) Automation() *Queue { return s.queues[QueueAutomation] }
func (s *Service) Email() *Queue     { return s.queues[QueueEmail] }
func (s *Service) Campaign() *Queue  { return s.queues[QueueCampaign] }
func (s *Service) Analytics() *Queue { return s.queues[QueueAnalytics] }

// Start launches every queue's worker pool. Handlers must be attached first.
func (s *Service) Start(ctx context.Context) error {
	for _, q := range s.queues {
		if err := q.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stop drains every queue.
func (s *Service) Stop(ctx context.Context) error {
	for _, q := range s.queues {
		if err := q.Stop(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stats snapshots job lifecycle counters for every queue.
func (s *Service) Stats() map[string]Counts {
	stats := make(map[string]Counts, len(s.queues))

	for name, q := range s.queues {
		stats[name] = q.Counts()
	}

	return stats
}

// Pause pauses one named queue.
func (s *Service) Pause(name string) error {
	q, err := s.Queue(name)
	if err != nil {
		return err
	}

	q.Pause()

	return nil
}

// Resume resumes one named queue.
func (s *Service) Resume(name string) error {
	q, err := s.Queue(name)
	if err != nil {
		return err
	}

	q.Resume()

	return nil
}

// AddEmailJob enqueues one outbound message. The delay comes from opts, or
// is derived from the payload's SendAt clamped to now; priority defaults
// from the payload.
func (s *Service) AddEmailJob(ctx context.Context, data *EmailJob, opts *Options) (*Job, error) {
	o := Options{Attempts: defaultAttempts}
	if opts != nil {
		o = *opts

		if o.Attempts < 1 {
			o.Attempts = defaultAttempts
		}
	}

	if o.Delay == 0 && data.SendAt != nil {
		if until := data.SendAt.Sub(s.now()); until > 0 {
			o.Delay = until
		}
	}

	if o.Priority == 0 {
		o.Priority = data.Priority
	}

	return s.Email().Add(ctx, data, o)
}

// AddCampaignJob enqueues one campaign batch continuation.
func (s *Service) AddCampaignJob(ctx context.Context, data *CampaignJob) (*Job, error) {
	return s.Campaign().Add(ctx, data, Options{Attempts: defaultAttempts})
}

// AddAutomationJob enqueues the next step of an execution. The delay is the
// pause computed by the previous step, zero to continue immediately.
func (s *Service) AddAutomationJob(ctx context.Context, data *AutomationJob, delay time.Duration) (*Job, error) {
	return s.Automation().Add(ctx, data, Options{Delay: delay, Attempts: defaultAttempts})
}

// AddAnalyticsJob enqueues one ingestion event. Five attempts; a lost event
// never blocks the owning execution.
func (s *Service) AddAnalyticsJob(ctx context.Context, data *AnalyticsJob) (*Job, error) {
	return s.Analytics().Add(ctx, data, Options{Attempts: analyticsAttempts})
}
