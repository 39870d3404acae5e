package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgrove/mailgrove/pkg/mailer"
	"github.com/mailgrove/mailgrove/pkg/persistence/memory"
	"github.com/mailgrove/mailgrove/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	messages []*mailer.Message
	tenants  []string
	result   *mailer.SendingResult
	err      error
}

func (s *fakeSender) Send(_ context.Context, message *mailer.Message, tenantID string) (*mailer.SendingResult, error) {
	s.messages = append(s.messages, message)
	s.tenants = append(s.tenants, tenantID)

	if s.err != nil {
		return nil, s.err
	}

	return s.result, nil
}

func emailJob() *queue.Job {
	return &queue.Job{
		ID: "job-1",
		Payload: &queue.EmailJob{
			TenantID:     "tenant-1",
			SubscriberID: "s-1",
			To:           "ada@example.com",
			ToName:       "Ada Lovelace",
			FromName:     "Mailgrove",
			Subject:      "Welcome Ada",
			Content:      "Hi!",
			ExecutionID:  "e-1",
		},
	}
}

func TestDelivery_HandleEmailJob(t *testing.T) {
	queues := queue.NewService(testLogger())
	sender := &fakeSender{result: &mailer.SendingResult{Success: true, MessageID: "msg-42"}}
	service := NewDelivery(sender, queues, testLogger())

	job := emailJob()
	require.NoError(t, service.HandleEmailJob(context.Background(), job))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "ada@example.com", sender.messages[0].To)
	assert.Equal(t, "Welcome Ada", sender.messages[0].Subject)
	assert.Equal(t, []string{"tenant-1"}, sender.tenants)

	// Acceptance produced a fire-and-forget analytics event.
	assert.Equal(t, 1, queues.Analytics().Counts().Waiting)
	assert.GreaterOrEqual(t, job.Progress(), 80)
}

func TestDelivery_TransportErrorIsTransient(t *testing.T) {
	queues := queue.NewService(testLogger())
	sender := &fakeSender{err: errors.New("connection refused")}
	service := NewDelivery(sender, queues, testLogger())

	err := service.HandleEmailJob(context.Background(), emailJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, queues.Analytics().Counts().Waiting)
}

func TestDelivery_TransportRejectionIsTransient(t *testing.T) {
	queues := queue.NewService(testLogger())
	sender := &fakeSender{result: &mailer.SendingResult{Success: false, Error: "mailbox full"}}
	service := NewDelivery(sender, queues, testLogger())

	err := service.HandleEmailJob(context.Background(), emailJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")
}

func TestDelivery_UnexpectedPayload(t *testing.T) {
	queues := queue.NewService(testLogger())
	service := NewDelivery(&fakeSender{}, queues, testLogger())

	err := service.HandleEmailJob(context.Background(), &queue.Job{ID: "job-1", Payload: "garbage"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
}

func TestDelivery_AnalyticsEventCarriesContext(t *testing.T) {
	persist := memory.NewPersistence()
	queues := queue.NewService(testLogger())
	sender := &fakeSender{result: &mailer.SendingResult{Success: true, MessageID: "msg-42"}}
	delivery := NewDelivery(sender, queues, testLogger())
	analytics := NewAnalytics(persist, queues, testLogger())

	require.NoError(t, delivery.HandleEmailJob(context.Background(), emailJob()))

	// Run the ingestion handler on the job the delivery enqueued.
	ingested := make(chan struct{})
	queues.Analytics().SetHandler(func(ctx context.Context, job *queue.Job) error {
		defer close(ingested)

		return analytics.HandleAnalyticsJob(ctx, job)
	})
	require.NoError(t, queues.Analytics().Start(context.Background()))
	<-ingested
	require.NoError(t, queues.Analytics().Stop(context.Background()))

	events := persist.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "email.sent", events[0].Kind)
	assert.Equal(t, "tenant-1", events[0].TenantID)
	assert.Equal(t, "e-1", events[0].ExecutionID)
	assert.Equal(t, "msg-42", events[0].Data["message_id"])
}
