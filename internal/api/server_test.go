package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/eventstore"
	"github.com/ignite/bounce-pipeline/internal/reconciler"
)

type mockIngestor struct {
	mu     sync.Mutex
	events []domain.InboundEvent
}

func (m *mockIngestor) Dispatch(event domain.InboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type mockEventLog struct {
	results []domain.WebhookEvent
	gotF    eventstore.Filter
}

func (m *mockEventLog) Query(_ context.Context, f eventstore.Filter) ([]domain.WebhookEvent, int, error) {
	m.gotF = f
	return m.results, len(m.results), nil
}

func (m *mockEventLog) Get(_ context.Context, id string) (*domain.WebhookEvent, error) {
	for i := range m.results {
		if m.results[i].ID == id {
			return &m.results[i], nil
		}
	}
	return nil, eventstore.ErrEventNotFound
}

func (m *mockEventLog) Export(_ context.Context, fn func([]domain.WebhookEvent) error) error {
	if len(m.results) == 0 {
		return nil
	}
	return fn(m.results)
}

type mockBounceLog struct {
	bounces []domain.BounceEvent
	counts  domain.BounceCounts
	gotSub  string
}

func (m *mockBounceLog) ListBounces(_ context.Context, subscriberID string, limit, offset int) ([]domain.BounceEvent, int, error) {
	m.gotSub = subscriberID
	return m.bounces, len(m.bounces), nil
}

func (m *mockBounceLog) BounceCounts(_ context.Context, subscriberID string) (domain.BounceCounts, error) {
	c := m.counts
	c.SubscriberID = subscriberID
	return c, nil
}

type mockCounters struct {
	counters domain.CampaignCounters
}

func (m *mockCounters) Counters(_ context.Context, campaignID string) (*domain.CampaignCounters, error) {
	c := m.counters
	c.CampaignID = campaignID
	return &c, nil
}

type mockSweeper struct{ n int }

func (m *mockSweeper) BlocklistBounced(context.Context) (int, error) { return m.n, nil }

type mockReconciling struct {
	report *reconciler.DiscrepancyReport
}

func (m *mockReconciling) RunNow(context.Context) (*reconciler.DiscrepancyReport, error) {
	return m.report, nil
}
func (m *mockReconciling) Latest() *reconciler.DiscrepancyReport { return m.report }

func newTestServer() (*Server, *mockIngestor, *mockEventLog, *mockBounceLog, *mockReconciling) {
	ing := &mockIngestor{}
	events := &mockEventLog{}
	bounces := &mockBounceLog{}
	rec := &mockReconciling{}
	s := NewServer(events, bounces, &mockCounters{counters: domain.CampaignCounters{InternalViews: 12, ProviderViews: 9}}, &mockSweeper{n: 3}, rec, ing, nil, config.WebhooksConfig{
		SparkPostEnabled: true, SESEnabled: true, MailgunEnabled: true, GenericEnabled: true,
	})
	return s, ing, events, bounces, rec
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _, _, _ := newTestServer()
	rec := doRequest(s, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSparkPostWebhook_SplitsBatch(t *testing.T) {
	s, ing, _, _, _ := newTestServer()

	batch := `[
		{"msys":{"message_event":{"type":"bounce","rcpt_to":"A@Example.com","bounce_class":"10"}}},
		{"msys":{"track_event":{"type":"open","rcpt_to":"b@example.com"}}},
		{"unrelated":true}
	]`
	rec := doRequest(s, "POST", "/webhooks/sparkpost", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ing.events) != 2 {
		t.Fatalf("expected 2 dispatched events, got %d", len(ing.events))
	}
	if ing.events[0].PartitionKey != "a@example.com" {
		t.Errorf("partition key should be the lowercased recipient, got %q", ing.events[0].PartitionKey)
	}
	if ing.events[0].EventType != "bounce" || ing.events[1].EventType != "open" {
		t.Errorf("unexpected event types: %s, %s", ing.events[0].EventType, ing.events[1].EventType)
	}
}

func TestSparkPostWebhook_InvalidJSON(t *testing.T) {
	s, ing, _, _, _ := newTestServer()
	rec := doRequest(s, "POST", "/webhooks/sparkpost", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(ing.events) != 0 {
		t.Error("nothing should be dispatched for invalid JSON")
	}
}

func TestSESWebhook_Notification(t *testing.T) {
	s, ing, _, _, _ := newTestServer()

	inner := `{"notificationType":"Bounce","mail":{"destination":["User@Example.com"]},"bounce":{"bounceType":"Permanent","bouncedRecipients":[{"emailAddress":"user@example.com"}]}}`
	wrapper, _ := json.Marshal(map[string]string{
		"Type":    "Notification",
		"Message": inner,
	})
	rec := doRequest(s, "POST", "/webhooks/ses", string(wrapper))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ing.events) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(ing.events))
	}
	evt := ing.events[0]
	if evt.Provider != "ses" || evt.EventType != "Bounce" || evt.PartitionKey != "user@example.com" {
		t.Errorf("unexpected event: %+v", evt)
	}
	// The dispatched payload is the unwrapped SES notification.
	if !strings.Contains(string(evt.Payload), "bouncedRecipients") {
		t.Error("payload should be the inner SES message")
	}
}

func TestSESWebhook_SubscriptionConfirmation(t *testing.T) {
	confirmed := make(chan struct{}, 1)
	sub := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmed <- struct{}{}
	}))
	defer sub.Close()

	s, ing, _, _, _ := newTestServer()
	wrapper, _ := json.Marshal(map[string]string{
		"Type":         "SubscriptionConfirmation",
		"SubscribeURL": sub.URL,
		"TopicArn":     "arn:aws:sns:us-east-1:1:topic",
	})
	rec := doRequest(s, "POST", "/webhooks/ses", string(wrapper))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ing.events) != 0 {
		t.Error("confirmation must not be dispatched as an event")
	}
	// The test TLS server uses a self-signed cert, so the confirm GET fails,
	// but it must have been attempted against an https URL only.
	select {
	case <-confirmed:
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMailgunWebhook(t *testing.T) {
	s, ing, _, _, _ := newTestServer()
	payload := `{"event-data":{"event":"failed","severity":"permanent","recipient":"X@Example.com"}}`
	rec := doRequest(s, "POST", "/webhooks/mailgun", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ing.events) != 1 || ing.events[0].PartitionKey != "x@example.com" {
		t.Fatalf("unexpected dispatch: %+v", ing.events)
	}
}

func TestGenericWebhook(t *testing.T) {
	s, ing, _, _, _ := newTestServer()
	rec := doRequest(s, "POST", "/webhooks/bounce", `{"email":"a@example.com","type":"hard"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ing.events) != 1 || ing.events[0].Provider != "generic" {
		t.Fatalf("unexpected dispatch: %+v", ing.events)
	}
}

func TestListWebhookLogs_Filters(t *testing.T) {
	s, _, events, _, _ := newTestServer()
	events.results = []domain.WebhookEvent{{ID: "1", WebhookType: "ses"}}

	rec := doRequest(s, "GET", "/api/webhook-logs?webhook_type=ses&processed=true&page=2&per_page=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if events.gotF.WebhookType != "ses" || events.gotF.Page != 2 || events.gotF.PerPage != 10 {
		t.Errorf("filter not passed through: %+v", events.gotF)
	}
	if events.gotF.Processed == nil || !*events.gotF.Processed {
		t.Error("processed filter should be true")
	}

	var resp struct {
		Results []domain.WebhookEvent `json:"results"`
		Total   int                   `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestExportWebhookLogs(t *testing.T) {
	s, _, events, _, _ := newTestServer()
	events.results = []domain.WebhookEvent{
		{ID: "1", WebhookType: "ses", Payload: json.RawMessage(`{}`)},
		{ID: "2", WebhookType: "mailgun", Payload: json.RawMessage(`{}`)},
	}
	rec := doRequest(s, "GET", "/api/webhook-logs/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	lines := strings.Count(strings.TrimSpace(rec.Body.String()), "\n") + 1
	if lines != 2 {
		t.Errorf("expected 2 JSON lines, got %d", lines)
	}
}

func TestGetWebhookLog(t *testing.T) {
	s, _, events, _, _ := newTestServer()
	events.results = []domain.WebhookEvent{{ID: "evt-1", WebhookType: "ses"}}

	rec := doRequest(s, "GET", "/api/webhook-logs/evt-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.WebhookEvent
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != "evt-1" || got.WebhookType != "ses" {
		t.Errorf("unexpected event: %+v", got)
	}

	rec = doRequest(s, "GET", "/api/webhook-logs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListBounces_SubscriberScope(t *testing.T) {
	s, _, _, bounces, _ := newTestServer()
	bounces.bounces = []domain.BounceEvent{{ID: "b-1", SubscriberID: "sub-1"}}

	rec := doRequest(s, "GET", "/api/bounces?subscriber_id=sub-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if bounces.gotSub != "sub-1" {
		t.Errorf("subscriber filter not passed, got %q", bounces.gotSub)
	}
}

func TestBounceCounts(t *testing.T) {
	s, _, _, bounces, _ := newTestServer()
	bounces.counts = domain.BounceCounts{Hard: 2, Complaint: 1}

	rec := doRequest(s, "GET", "/api/subscribers/sub-1/bounce-counts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.BounceCounts
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.SubscriberID != "sub-1" || got.Hard != 2 || got.Complaint != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
}

func TestCampaignCounters(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	rec := doRequest(s, "GET", "/api/campaigns/c-7/counters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.CampaignCounters
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.CampaignID != "c-7" {
		t.Errorf("expected campaign c-7, got %q", got.CampaignID)
	}
	if got.InternalViews != 12 || got.ProviderViews != 9 {
		t.Errorf("expected 12/9 views, got %d/%d", got.InternalViews, got.ProviderViews)
	}
}

func TestBlocklistBounced(t *testing.T) {
	s, _, _, _, _ := newTestServer()
	rec := doRequest(s, "POST", "/api/subscribers/blocklist-bounced", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["blocklisted"] != 3 {
		t.Errorf("expected 3 blocklisted, got %d", resp["blocklisted"])
	}
}

func TestReconcileEndpoints(t *testing.T) {
	s, _, _, _, rc := newTestServer()

	rec := doRequest(s, "GET", "/api/reconcile/latest", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first audit, got %d", rec.Code)
	}

	rc.report = &reconciler.DiscrepancyReport{MatchRate: 1, GeneratedAt: time.Now()}
	rec = doRequest(s, "POST", "/api/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(s, "GET", "/api/reconcile/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report reconciler.DiscrepancyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.MatchRate != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}
