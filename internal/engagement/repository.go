package engagement

import (
	"context"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Repository is the persistence contract for campaign engagement counters.
// Increments are upserts: the first hit for a campaign creates its row.
type Repository interface {
	// IncrementInternal adds one to the internal counter for the kind.
	IncrementInternal(ctx context.Context, campaignID string, kind domain.EngagementKind) error

	// IncrementProvider adds one to the provider counter for the kind.
	IncrementProvider(ctx context.Context, campaignID string, kind domain.EngagementKind) error

	// GetCounters returns the counter row for a campaign. A campaign with no
	// recorded engagement returns zeroed counters, not an error.
	GetCounters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error)

	// ListActive returns counters for every campaign with engagement
	// recorded since the cutoff.
	ListActive(ctx context.Context, since time.Time) ([]domain.CampaignCounters, error)
}
