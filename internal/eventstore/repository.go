package eventstore

import (
	"context"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Filter narrows a log query. Zero values mean "any". Processed is a
// tri-state: nil matches both processed and pending entries.
type Filter struct {
	WebhookType string
	EventType   string
	Processed   *bool
	Page        int
	PerPage     int
}

// Repository is the persistence contract for the webhook event log.
type Repository interface {
	// Insert appends a new entry and returns its assigned ID.
	Insert(ctx context.Context, event *domain.WebhookEvent) (string, error)

	// Get fetches a single entry. Returns ErrEventNotFound if missing.
	Get(ctx context.Context, id string) (*domain.WebhookEvent, error)

	// SetProcessed records the processing outcome for an entry. Returns
	// ErrAlreadyProcessed if the entry was already marked, ErrEventNotFound
	// if it doesn't exist.
	SetProcessed(ctx context.Context, id string, errorMessage string, at time.Time) error

	// List returns entries matching the filter, newest first, plus the
	// total match count for pagination.
	List(ctx context.Context, f Filter) ([]domain.WebhookEvent, int, error)

	// ListUnprocessed returns up to limit pending entries, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error)

	// ListProcessedBefore returns processed entries received before the
	// cutoff, oldest first, up to limit.
	ListProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error)

	// DeleteByIDs removes the given entries and returns how many were
	// deleted. Pending entries are never deleted, even when listed.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
