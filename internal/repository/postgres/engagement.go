package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// EngagementRepo implements engagement.Repository against PostgreSQL.
type EngagementRepo struct{ db *sql.DB }

// NewEngagementRepo creates a Postgres-backed engagement repository.
func NewEngagementRepo(db *sql.DB) *EngagementRepo { return &EngagementRepo{db: db} }

// counterColumn maps a source/kind pair to its column. Kinds are validated
// by the aggregator before they reach the repository.
func counterColumn(internal bool, kind domain.EngagementKind) string {
	switch {
	case internal && kind == domain.EngagementView:
		return "internal_views"
	case internal && kind == domain.EngagementClick:
		return "internal_clicks"
	case kind == domain.EngagementView:
		return "provider_views"
	default:
		return "provider_clicks"
	}
}

func (r *EngagementRepo) IncrementInternal(ctx context.Context, campaignID string, kind domain.EngagementKind) error {
	return r.increment(ctx, campaignID, counterColumn(true, kind))
}

func (r *EngagementRepo) IncrementProvider(ctx context.Context, campaignID string, kind domain.EngagementKind) error {
	return r.increment(ctx, campaignID, counterColumn(false, kind))
}

func (r *EngagementRepo) increment(ctx context.Context, campaignID, column string) error {
	q := fmt.Sprintf(`
		INSERT INTO campaign_counters (campaign_id, %s, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (campaign_id)
		DO UPDATE SET %s = campaign_counters.%s + 1, updated_at = NOW()
	`, column, column, column)
	if _, err := r.db.ExecContext(ctx, q, campaignID); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

func (r *EngagementRepo) GetCounters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error) {
	c := &domain.CampaignCounters{}
	err := r.db.QueryRowContext(ctx, `
		SELECT campaign_id, internal_views, internal_clicks, provider_views, provider_clicks
		FROM campaign_counters WHERE campaign_id = $1
	`, campaignID).Scan(&c.CampaignID, &c.InternalViews, &c.InternalClicks, &c.ProviderViews, &c.ProviderClicks)
	if err == sql.ErrNoRows {
		return &domain.CampaignCounters{CampaignID: campaignID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	return c, nil
}

func (r *EngagementRepo) ListActive(ctx context.Context, since time.Time) ([]domain.CampaignCounters, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, internal_views, internal_clicks, provider_views, provider_clicks
		FROM campaign_counters
		WHERE updated_at >= $1
		ORDER BY campaign_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list active counters: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignCounters
	for rows.Next() {
		var c domain.CampaignCounters
		if err := rows.Scan(&c.CampaignID, &c.InternalViews, &c.InternalClicks, &c.ProviderViews, &c.ProviderClicks); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
