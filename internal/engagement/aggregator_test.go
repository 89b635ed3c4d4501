package engagement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

type mockCounterRepo struct {
	mu       sync.Mutex
	counters map[string]*domain.CampaignCounters
	lastSeen map[string]time.Time
}

func newMockCounterRepo() *mockCounterRepo {
	return &mockCounterRepo{
		counters: make(map[string]*domain.CampaignCounters),
		lastSeen: make(map[string]time.Time),
	}
}

func (m *mockCounterRepo) row(campaignID string) *domain.CampaignCounters {
	c, ok := m.counters[campaignID]
	if !ok {
		c = &domain.CampaignCounters{CampaignID: campaignID}
		m.counters[campaignID] = c
	}
	m.lastSeen[campaignID] = time.Now()
	return c
}

func (m *mockCounterRepo) IncrementInternal(_ context.Context, campaignID string, kind domain.EngagementKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.row(campaignID)
	if kind == domain.EngagementView {
		c.InternalViews++
	} else {
		c.InternalClicks++
	}
	return nil
}

func (m *mockCounterRepo) IncrementProvider(_ context.Context, campaignID string, kind domain.EngagementKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.row(campaignID)
	if kind == domain.EngagementView {
		c.ProviderViews++
	} else {
		c.ProviderClicks++
	}
	return nil
}

func (m *mockCounterRepo) GetCounters(_ context.Context, campaignID string) (*domain.CampaignCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[campaignID]; ok {
		cp := *c
		return &cp, nil
	}
	return &domain.CampaignCounters{CampaignID: campaignID}, nil
}

func (m *mockCounterRepo) ListActive(_ context.Context, since time.Time) ([]domain.CampaignCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CampaignCounters
	for id, seen := range m.lastSeen {
		if seen.After(since) {
			out = append(out, *m.counters[id])
		}
	}
	return out, nil
}

func TestRecord_SeparateTallies(t *testing.T) {
	agg := NewAggregator(newMockCounterRepo())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := agg.RecordInternal(ctx, "c-1", domain.EngagementView); err != nil {
			t.Fatalf("RecordInternal: %v", err)
		}
	}
	for i := 0; i < 7; i++ {
		if err := agg.RecordProvider(ctx, "c-1", domain.EngagementView); err != nil {
			t.Fatalf("RecordProvider: %v", err)
		}
	}
	agg.RecordInternal(ctx, "c-1", domain.EngagementClick)
	agg.RecordProvider(ctx, "c-1", domain.EngagementClick)
	agg.RecordProvider(ctx, "c-1", domain.EngagementClick)

	c, err := agg.Counters(ctx, "c-1")
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if c.InternalViews != 10 || c.ProviderViews != 7 {
		t.Errorf("views: internal=%d provider=%d, want 10/7", c.InternalViews, c.ProviderViews)
	}
	if c.InternalClicks != 1 || c.ProviderClicks != 2 {
		t.Errorf("clicks: internal=%d provider=%d, want 1/2", c.InternalClicks, c.ProviderClicks)
	}
}

func TestRecord_Validation(t *testing.T) {
	agg := NewAggregator(newMockCounterRepo())
	ctx := context.Background()

	if err := agg.RecordInternal(ctx, "", domain.EngagementView); err == nil {
		t.Error("missing campaign ID should be rejected")
	}
	if err := agg.RecordProvider(ctx, "c-1", domain.EngagementKind("bounce")); err == nil {
		t.Error("invalid kind should be rejected")
	}
	c, _ := agg.Counters(ctx, "c-1")
	if c.ProviderViews != 0 || c.ProviderClicks != 0 {
		t.Error("rejected records must not count")
	}
}

func TestCounters_UnknownCampaignIsZero(t *testing.T) {
	agg := NewAggregator(newMockCounterRepo())
	c, err := agg.Counters(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if c.InternalViews+c.InternalClicks+c.ProviderViews+c.ProviderClicks != 0 {
		t.Error("unknown campaign should report zeroed counters")
	}
}

func TestRecord_ConcurrentIncrements(t *testing.T) {
	agg := NewAggregator(newMockCounterRepo())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := agg.RecordInternal(ctx, "c-1", domain.EngagementView); err != nil {
				t.Errorf("RecordInternal: %v", err)
			}
		}()
	}
	wg.Wait()

	c, _ := agg.Counters(ctx, "c-1")
	if c.InternalViews != 100 {
		t.Errorf("expected 100 internal views, got %d", c.InternalViews)
	}
}

func TestActiveCampaigns(t *testing.T) {
	agg := NewAggregator(newMockCounterRepo())
	ctx := context.Background()

	agg.RecordProvider(ctx, "c-1", domain.EngagementView)
	agg.RecordProvider(ctx, "c-2", domain.EngagementClick)

	active, err := agg.ActiveCampaigns(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ActiveCampaigns: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active campaigns, got %d", len(active))
	}
}
