package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// Service is the webhook event log. Appends are fully concurrent; entries
// transition to processed exactly once.
type Service struct {
	repo Repository
}

// NewService creates the event log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append logs an inbound webhook event and returns its ID. The entry starts
// unprocessed; ReceivedAt defaults to now when the caller didn't set it.
func (s *Service) Append(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	if len(event.Payload) == 0 {
		return "", ErrEmptyPayload
	}
	if event.WebhookType == "" {
		return "", fmt.Errorf("webhook event missing webhook type")
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	event.Processed = false
	event.ErrorMessage = ""
	event.ProcessedAt = nil

	id, err := s.repo.Insert(ctx, event)
	if err != nil {
		return "", fmt.Errorf("append webhook event: %w", err)
	}
	event.ID = id
	return id, nil
}

// MarkProcessed records the processing outcome for an entry. A nil procErr
// marks success; otherwise the error text is stored with the entry. Calling
// it twice for the same entry returns ErrAlreadyProcessed and leaves the
// first outcome in place.
func (s *Service) MarkProcessed(ctx context.Context, id string, procErr error) error {
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := s.repo.SetProcessed(ctx, id, msg, time.Now().UTC()); err != nil {
		return err
	}
	if procErr != nil {
		logger.Warn("webhook event processed with error", "event_id", id, "error", msg)
	}
	return nil
}

// Query returns log entries matching the filter, newest first, with the
// total match count. Page and PerPage are clamped to sane values.
func (s *Service) Query(ctx context.Context, f Filter) ([]domain.WebhookEvent, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	return s.repo.List(ctx, f)
}

// Get fetches a single entry by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	return s.repo.Get(ctx, id)
}

// Unprocessed returns pending entries oldest first, for replay after a crash
// left appended events unconsumed.
func (s *Service) Unprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	if limit < 1 {
		limit = defaultPerPage
	}
	return s.repo.ListUnprocessed(ctx, limit)
}

// Export walks every entry in pages and hands each batch to fn, newest
// first. Used by the log download endpoint.
func (s *Service) Export(ctx context.Context, fn func([]domain.WebhookEvent) error) error {
	f := Filter{Page: 1, PerPage: maxPerPage}
	for {
		batch, total, err := s.repo.List(ctx, f)
		if err != nil {
			return fmt.Errorf("export webhook events: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if f.Page*f.PerPage >= total {
			return nil
		}
		f.Page++
	}
}

// ProcessedBefore returns processed entries older than the cutoff, for the
// archive worker.
func (s *Service) ProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error) {
	return s.repo.ListProcessedBefore(ctx, cutoff, limit)
}

// Delete removes the given entries, typically a batch the archive worker
// just exported. Pending entries are never deleted, even when listed.
func (s *Service) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete webhook events: %w", err)
	}
	if n > 0 {
		logger.Info("webhook event log pruned", "deleted", n)
	}
	return n, nil
}
