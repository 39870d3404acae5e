// Package mailer defines the outbound email transport boundary. Delivery
// providers are external collaborators behind the Sender interface.
package mailer

import "context"

// Message is one fully personalized outbound email.
type Message struct {
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
	FromName string `json:"from_name,omitempty"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

// SendingResult reports transport acceptance, not delivery.
type SendingResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, message *Message, tenantID string) (*SendingResult, error)
}
