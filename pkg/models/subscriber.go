package models

import "time"

// SubscriberStatus represents the deliverability state of a subscriber.
type SubscriberStatus string

const (
	SubscriberStatusActive       SubscriberStatus = "active"
	SubscriberStatusUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberStatusBounced      SubscriberStatus = "bounced"
	SubscriberStatusComplained   SubscriberStatus = "complained"
)

// Subscriber is a tenant's contact.
type Subscriber struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Email        string            `json:"email"      validate:"required,email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Status       SubscriberStatus  `json:"status"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Field resolves a named field: the well-known fields first, then the
// custom-field map. Missing fields resolve to the empty string.
func (s *Subscriber) Field(name string) string {
	switch name {
	case "email":
		return s.Email
	case "firstName":
		return s.FirstName
	case "lastName":
		return s.LastName
	case "status":
		return string(s.Status)
	default:
		return s.CustomFields[name]
	}
}

// List is a named collection of subscribers within a tenant.
type List struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}
