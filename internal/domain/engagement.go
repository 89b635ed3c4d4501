package domain

// EngagementKind is a subscriber interaction with a sent campaign.
type EngagementKind string

const (
	EngagementView  EngagementKind = "view"
	EngagementClick EngagementKind = "click"
)

// Valid reports whether k is a recognized engagement kind.
func (k EngagementKind) Valid() bool {
	return k == EngagementView || k == EngagementClick
}

// CampaignCounters holds the two independent counter pairs for one campaign:
// internally-observed (pixel/redirect hits we served) and provider-reported
// (engagement events from the ESP webhook). The pairs never merge; the
// reconciler reads their divergence.
type CampaignCounters struct {
	CampaignID     string `json:"campaign_id" db:"campaign_id"`
	InternalViews  int64  `json:"internal_views" db:"internal_views"`
	InternalClicks int64  `json:"internal_clicks" db:"internal_clicks"`
	ProviderViews  int64  `json:"provider_views" db:"provider_views"`
	ProviderClicks int64  `json:"provider_clicks" db:"provider_clicks"`
}
