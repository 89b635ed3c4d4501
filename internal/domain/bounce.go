package domain

import (
	"encoding/json"
	"time"
)

// BounceType classifies a delivery failure notification.
type BounceType string

const (
	BounceTypeHard      BounceType = "hard"
	BounceTypeSoft      BounceType = "soft"
	BounceTypeComplaint BounceType = "complaint"
)

// Valid reports whether t is one of the three canonical bounce kinds.
func (t BounceType) Valid() bool {
	switch t {
	case BounceTypeHard, BounceTypeSoft, BounceTypeComplaint:
		return true
	}
	return false
}

// BounceEvent is a single classified bounce notification. Immutable once
// recorded. The ID is the provider-supplied event identifier when one exists,
// so duplicate webhook deliveries carry the same ID and can be deduplicated.
type BounceEvent struct {
	ID           string          `json:"id" db:"id"`
	SubscriberID string          `json:"subscriber_id" db:"subscriber_id"`
	Email        string          `json:"email" db:"email"`
	CampaignID   string          `json:"campaign_id,omitempty" db:"campaign_id"`
	Type         BounceType      `json:"type" db:"type"`
	Source       string          `json:"source" db:"source"`
	Meta         json.RawMessage `json:"meta,omitempty" db:"meta"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// BounceAction is what the engine does when a kind's counter reaches its
// threshold.
type BounceAction string

const (
	ActionNone      BounceAction = "none"
	ActionBlocklist BounceAction = "blocklist"
	ActionDelete    BounceAction = "delete"
)

// TransitionKind tags the outcome of applying a bounce event.
type TransitionKind string

const (
	TransitionNoOp        TransitionKind = "noop"
	TransitionBlocklisted TransitionKind = "blocklisted"
	TransitionDeleted     TransitionKind = "deleted"
)

// TransitionOutcome reports what the bounce engine did with an event.
// The Deleted variant is destructive and callers must handle it explicitly
// rather than falling through a generic status assignment.
type TransitionOutcome struct {
	Kind         TransitionKind   `json:"kind"`
	SubscriberID string           `json:"subscriber_id"`
	BounceType   BounceType       `json:"bounce_type"`
	Count        int              `json:"count"`
	Threshold    int              `json:"threshold,omitempty"`
	PriorStatus  SubscriberStatus `json:"prior_status,omitempty"`
	NewStatus    SubscriberStatus `json:"new_status,omitempty"`
}
