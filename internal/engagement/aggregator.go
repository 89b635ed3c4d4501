package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Aggregator tallies campaign engagement. Counters only ever move up, and
// each source increments its own pair: internal hits from our tracking
// endpoints, provider events from the webhook pipeline.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates the engagement aggregator.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// RecordInternal counts one pixel or redirect hit served by us.
func (a *Aggregator) RecordInternal(ctx context.Context, campaignID string, kind domain.EngagementKind) error {
	if campaignID == "" {
		return fmt.Errorf("engagement: missing campaign ID")
	}
	if !kind.Valid() {
		return fmt.Errorf("engagement: invalid kind %q", kind)
	}
	if err := a.repo.IncrementInternal(ctx, campaignID, kind); err != nil {
		return fmt.Errorf("record internal %s: %w", kind, err)
	}
	return nil
}

// RecordProvider counts one open or click event reported by the provider.
func (a *Aggregator) RecordProvider(ctx context.Context, campaignID string, kind domain.EngagementKind) error {
	if campaignID == "" {
		return fmt.Errorf("engagement: missing campaign ID")
	}
	if !kind.Valid() {
		return fmt.Errorf("engagement: invalid kind %q", kind)
	}
	if err := a.repo.IncrementProvider(ctx, campaignID, kind); err != nil {
		return fmt.Errorf("record provider %s: %w", kind, err)
	}
	return nil
}

// Counters returns both counter pairs for a campaign.
func (a *Aggregator) Counters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error) {
	return a.repo.GetCounters(ctx, campaignID)
}

// ActiveCampaigns returns counters for every campaign seen since the cutoff.
func (a *Aggregator) ActiveCampaigns(ctx context.Context, since time.Time) ([]domain.CampaignCounters, error) {
	return a.repo.ListActive(ctx, since)
}
