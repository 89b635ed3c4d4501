package domain

import "time"

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberEnabled     SubscriberStatus = "enabled"
	SubscriberDisabled    SubscriberStatus = "disabled"
	SubscriberBlocklisted SubscriberStatus = "blocklisted"
)

// Subscriber represents a single email recipient.
//
// Status is mutated only by the bounce engine (threshold transitions) or by
// explicit administrative action outside this service. The bounce engine may
// also delete the subscriber entirely when the configured action for a bounce
// kind is "delete".
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	Email     string           `json:"email" db:"email"`
	Status    SubscriberStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// BounceCounts holds the per-kind bounce counters for one subscriber.
// Counts are monotonically non-decreasing; only an administrative reset
// (outside this core) may lower them.
type BounceCounts struct {
	SubscriberID string `json:"subscriber_id" db:"subscriber_id"`
	Hard         int    `json:"hard" db:"hard"`
	Soft         int    `json:"soft" db:"soft"`
	Complaint    int    `json:"complaint" db:"complaint"`
}
