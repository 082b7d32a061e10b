package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Endpoint is a configured receiver of payout events.
type Endpoint struct {
	URL    string   `json:"url"    mapstructure:"url"`
	Events []string `json:"events" mapstructure:"events"` // empty = every event
}

// accepts reports whether e subscribes to eventType.
func (e Endpoint) accepts(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == eventType || ev == "*" {
			return true
		}
	}
	return false
}

// WebhookEvent is the JSON body posted to every matching endpoint.
type WebhookEvent struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// WebhookDelivery records the outcome of a single delivery attempt.
type WebhookDelivery struct {
	ID           uuid.UUID `json:"id"`
	EventID      uuid.UUID `json:"event_id"`
	EventType    string    `json:"event_type"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	Attempt      int       `json:"attempt"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
}
