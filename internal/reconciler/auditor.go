package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// CounterSource yields the campaign counters to audit.
type CounterSource interface {
	ActiveCampaigns(ctx context.Context, since time.Time) ([]domain.CampaignCounters, error)
}

// SubscriberSource yields subscribers whose bounce counters meet the given
// thresholds but who are not blocklisted.
type SubscriberSource interface {
	SubscribersAtThreshold(ctx context.Context, thresholds map[domain.BounceType]int) ([]domain.Subscriber, error)
}

// Auditor runs read-only consistency checks over the pipeline's state.
type Auditor struct {
	counters    CounterSource
	subscribers SubscriberSource
	cfg         config.BounceConfig
	tolerance   int64
}

// NewAuditor creates an auditor over the given sources. Counter pairs whose
// absolute difference is within tolerance are reported as matched; provider
// webhooks lag real events, so a small allowance cuts alert noise on busy
// campaigns.
func NewAuditor(counters CounterSource, subscribers SubscriberSource, cfg config.BounceConfig, tolerance int64) *Auditor {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Auditor{counters: counters, subscribers: subscribers, cfg: cfg, tolerance: tolerance}
}

// Audit compares counters for every campaign active inside the window and
// checks subscriber state against earned thresholds. It mutates nothing.
func (a *Auditor) Audit(ctx context.Context, window time.Duration) (*DiscrepancyReport, error) {
	since := time.Now().Add(-window)
	report := &DiscrepancyReport{
		Period:      fmt.Sprintf("%s to %s", since.Format(time.RFC3339), time.Now().Format(time.RFC3339)),
		GeneratedAt: time.Now().UTC(),
	}

	campaigns, err := a.counters.ActiveCampaigns(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("audit: list active campaigns: %w", err)
	}
	report.CampaignsAudited = len(campaigns)

	checked, matched := 0, 0
	for _, c := range campaigns {
		report.InternalTotals.Views += c.InternalViews
		report.InternalTotals.Clicks += c.InternalClicks
		report.ProviderTotals.Views += c.ProviderViews
		report.ProviderTotals.Clicks += c.ProviderClicks

		for _, m := range []struct {
			metric   string
			expected int64
			actual   int64
		}{
			{"views", c.InternalViews, c.ProviderViews},
			{"clicks", c.InternalClicks, c.ProviderClicks},
		} {
			checked++
			diff := m.expected - m.actual
			if diff < 0 {
				diff = -diff
			}
			if diff <= a.tolerance {
				matched++
				continue
			}
			report.Mismatches = append(report.Mismatches, CounterMismatch{
				CampaignID:  c.CampaignID,
				Metric:      m.metric,
				Expected:    m.expected,
				Actual:      m.actual,
				Difference:  m.expected - m.actual,
				Description: fmt.Sprintf("provider-reported %s diverge from internally-observed", m.metric),
			})
		}
	}
	if checked > 0 {
		report.MatchRate = float64(matched) / float64(checked)
	} else {
		report.MatchRate = 1
	}

	stale, err := a.auditSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	report.StaleSubscribers = stale

	logger.Info("reconciliation audit complete",
		"campaigns", report.CampaignsAudited,
		"mismatches", len(report.Mismatches),
		"stale_subscribers", len(report.StaleSubscribers),
		"match_rate", report.MatchRate)
	return report, nil
}

// auditSubscribers finds subscribers over a blocklist threshold whose status
// never transitioned. Kinds configured with action none or delete are not
// checked: none earns no transition, and a delete that ran leaves no row.
func (a *Auditor) auditSubscribers(ctx context.Context) ([]StaleSubscriberState, error) {
	thresholds := make(map[domain.BounceType]int)
	for _, kind := range []domain.BounceType{domain.BounceTypeHard, domain.BounceTypeSoft, domain.BounceTypeComplaint} {
		if rule, ok := a.cfg.Rule(kind); ok && rule.Action == domain.ActionBlocklist {
			thresholds[kind] = rule.Threshold
		}
	}
	if len(thresholds) == 0 {
		return nil, nil
	}

	subs, err := a.subscribers.SubscribersAtThreshold(ctx, thresholds)
	if err != nil {
		return nil, fmt.Errorf("audit: subscribers at threshold: %w", err)
	}

	var stale []StaleSubscriberState
	for _, sub := range subs {
		stale = append(stale, StaleSubscriberState{
			SubscriberID:   sub.ID,
			Email:          sub.Email,
			ActualStatus:   sub.Status,
			ExpectedStatus: domain.SubscriberBlocklisted,
			Description:    "bounce counter meets blocklist threshold but status never transitioned",
		})
	}
	return stale, nil
}
