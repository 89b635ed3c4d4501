package bounce

import (
	"context"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Repository defines the data access contract for the bounce engine.
type Repository interface {
	// GetSubscriber fetches a subscriber by ID. Returns ErrSubscriberNotFound
	// if it doesn't exist.
	GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error)

	// GetSubscriberByEmail fetches a subscriber by normalized email.
	// Returns ErrSubscriberNotFound if it doesn't exist.
	GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// RecordBounce persists a bounce event. Events are immutable once
	// recorded.
	RecordBounce(ctx context.Context, b *domain.BounceEvent) error

	// IncrementBounceCount atomically increments the (subscriber, kind)
	// counter and returns the new count.
	IncrementBounceCount(ctx context.Context, subscriberID string, kind domain.BounceType) (int, error)

	// UpdateSubscriberStatus sets the subscriber's status and returns the
	// prior status.
	UpdateSubscriberStatus(ctx context.Context, subscriberID string, status domain.SubscriberStatus) (domain.SubscriberStatus, error)

	// DeleteSubscriber removes the subscriber entirely. Irreversible.
	DeleteSubscriber(ctx context.Context, subscriberID string) error

	// SubscribersAtThreshold returns subscribers whose hard or complaint
	// counter already meets the given per-kind thresholds but whose status
	// is not yet blocklisted. Used by the administrative sweep and the
	// reconciler.
	SubscribersAtThreshold(ctx context.Context, thresholds map[domain.BounceType]int) ([]domain.Subscriber, error)
}

// DedupStore remembers which event IDs have already been counted so that a
// duplicate webhook delivery is an idempotent no-op.
type DedupStore interface {
	// MarkSeen records the event ID and reports whether it was new. The
	// check-and-set is atomic so two concurrent deliveries of the same
	// event cannot both observe "new".
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Unmark releases the claim on an event ID that could not be counted,
	// so the provider's retry is treated as new rather than a duplicate.
	Unmark(ctx context.Context, eventID string) error
}
