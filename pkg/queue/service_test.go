package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_QueueTopology(t *testing.T) {
	s := NewService(testLogger())

	tests := []struct {
		name        string
		queue       *Queue
		concurrency int
	}{
		{QueueAutomation, s.Automation(), automationConcurrency},
		{QueueEmail, s.Email(), emailConcurrency},
		{QueueCampaign, s.Campaign(), campaignConcurrency},
		{QueueAnalytics, s.Analytics(), analyticsConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.queue)
			assert.Equal(t, tt.name, tt.queue.Name())
			assert.Equal(t, tt.concurrency, tt.queue.concurrency)
		})
	}

	_, err := s.Queue("reporting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown queue "reporting"`)
}

func TestService_AddEmailJob_SendAtBecomesDelay(t *testing.T) {
	ctx := context.Background()
	s := NewService(testLogger())

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Email().now = func() time.Time { return base }

	sendAt := base.Add(time.Hour)
	job, err := s.AddEmailJob(ctx, &EmailJob{To: "ada@example.com", Subject: "Hi", SendAt: &sendAt}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, job.Status)
	assert.Equal(t, base.Add(time.Hour), job.DelayUntil)
	assert.Equal(t, defaultAttempts, job.MaxAttempts)
}

func TestService_AddEmailJob_PastSendAtRunsImmediately(t *testing.T) {
	ctx := context.Background()
	s := NewService(testLogger())

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	sendAt := base.Add(-time.Hour)
	job, err := s.AddEmailJob(ctx, &EmailJob{To: "ada@example.com", Subject: "Hi", SendAt: &sendAt}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, job.Status)
}

func TestService_AddEmailJob_PayloadPriority(t *testing.T) {
	ctx := context.Background()
	s := NewService(testLogger())

	job, err := s.AddEmailJob(ctx, &EmailJob{To: "ada@example.com", Subject: "Hi", Priority: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Priority)

	// Explicit options win over the payload.
	job, err = s.AddEmailJob(ctx, &EmailJob{To: "ada@example.com", Subject: "Hi", Priority: 3}, &Options{Priority: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Priority)
	assert.Equal(t, defaultAttempts, job.MaxAttempts)
}

func TestService_AddAutomationJob(t *testing.T) {
	ctx := context.Background()
	s := NewService(testLogger())

	job, err := s.AddAutomationJob(ctx, &AutomationJob{ExecutionID: "e-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, QueueAutomation, job.Queue)
	assert.Equal(t, StatusWaiting, job.Status)

	job, err = s.AddAutomationJob(ctx, &AutomationJob{ExecutionID: "e-1"}, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, job.Status)
}

func TestService_AddAnalyticsJob_FiveAttempts(t *testing.T) {
	job, err := NewService(testLogger()).AddAnalyticsJob(context.Background(), &AnalyticsJob{})
	require.NoError(t, err)
	assert.Equal(t, QueueAnalytics, job.Queue)
	assert.Equal(t, analyticsAttempts, job.MaxAttempts)
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewService(testLogger())

	_, err := s.AddCampaignJob(ctx, &CampaignJob{CampaignID: "c-1", BatchSize: 100})
	require.NoError(t, err)
	_, err = s.AddAutomationJob(ctx, &AutomationJob{ExecutionID: "e-1"}, time.Hour)
	require.NoError(t, err)

	stats := s.Stats()
	require.Len(t, stats, 4)
	assert.Equal(t, 1, stats[QueueCampaign].Waiting)
	assert.Equal(t, 1, stats[QueueAutomation].Delayed)
	assert.Zero(t, stats[QueueEmail].Waiting)
}

func TestService_PauseResume(t *testing.T) {
	s := NewService(testLogger())

	require.NoError(t, s.Pause(QueueEmail))
	assert.True(t, s.Email().Paused())
	assert.False(t, s.Automation().Paused())

	require.NoError(t, s.Resume(QueueEmail))
	assert.False(t, s.Email().Paused())

	assert.Error(t, s.Pause("reporting"))
	assert.Error(t, s.Resume("reporting"))
}
