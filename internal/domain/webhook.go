package domain

import (
	"encoding/json"
	"time"
)

// WebhookEvent is one entry in the append-only webhook event log. Created on
// ingestion; Processed, ErrorMessage and ProcessedAt are the only mutable
// fields and are set exactly once by the processing step that consumes it.
type WebhookEvent struct {
	ID           string          `json:"id" db:"id"`
	WebhookType  string          `json:"webhook_type" db:"webhook_type"`
	EventType    string          `json:"event_type" db:"event_type"`
	MessageID    string          `json:"message_id,omitempty" db:"message_id"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Processed    bool            `json:"processed" db:"processed"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	ReceivedAt   time.Time       `json:"received_at" db:"received_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

// InboundEvent is the decoded record the webhook receiver hands to the
// ingestion pipeline: the provider name, the raw payload and the time of
// arrival. PartitionKey (subscriber email when known) routes the event to a
// single consumer loop so per-subscriber processing stays serialized.
type InboundEvent struct {
	Provider     string
	EventType    string
	PartitionKey string
	Payload      json.RawMessage
	ReceivedAt   time.Time
}
