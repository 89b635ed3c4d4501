package reconciler

import (
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// CounterMismatch flags a campaign whose provider-reported counter diverges
// from the internally-observed one for the same metric.
type CounterMismatch struct {
	CampaignID  string `json:"campaign_id"`
	Metric      string `json:"metric"` // "views" or "clicks"
	Expected    int64  `json:"expected"`
	Actual      int64  `json:"actual"`
	Difference  int64  `json:"difference"`
	Description string `json:"description"`
}

// StaleSubscriberState flags a subscriber whose bounce counter meets a
// configured blocklist threshold while their status never transitioned.
type StaleSubscriberState struct {
	SubscriberID   string                  `json:"subscriber_id"`
	Email          string                  `json:"email"`
	ActualStatus   domain.SubscriberStatus `json:"actual_status"`
	ExpectedStatus domain.SubscriberStatus `json:"expected_status"`
	Description    string                  `json:"description"`
}

// Totals aggregates one source's counters across the audited campaigns.
type Totals struct {
	Views  int64 `json:"views"`
	Clicks int64 `json:"clicks"`
}

// DiscrepancyReport is the outcome of one audit pass.
type DiscrepancyReport struct {
	Period           string                 `json:"period"`
	CampaignsAudited int                    `json:"campaigns_audited"`
	InternalTotals   Totals                 `json:"internal_totals"`
	ProviderTotals   Totals                 `json:"provider_totals"`
	Mismatches       []CounterMismatch      `json:"mismatches"`
	StaleSubscribers []StaleSubscriberState `json:"stale_subscribers"`
	MatchRate        float64                `json:"match_rate"`
	GeneratedAt      time.Time              `json:"generated_at"`
}

// Clean reports whether the audit found nothing to flag.
func (r *DiscrepancyReport) Clean() bool {
	return len(r.Mismatches) == 0 && len(r.StaleSubscribers) == 0
}
