// Package logmailer provides a development Sender that logs instead of
// delivering. Useful for local runs and tests.
package logmailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mailgrove/mailgrove/pkg/mailer"
)

type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	return &Sender{
		logger: logger.With("module", "logmailer"),
	}
}

func (s *Sender) Send(ctx context.Context, message *mailer.Message, tenantID string) (*mailer.SendingResult, error) {
	messageID := uuid.New().String()

	s.logger.InfoContext(ctx, "Accepted outbound email",
		"tenant_id", tenantID,
		"to", message.To,
		"subject", message.Subject,
		"message_id", messageID,
	)

	return &mailer.SendingResult{Success: true, MessageID: messageID}, nil
}
