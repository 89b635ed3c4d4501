package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/eventstore"
	"github.com/ignite/bounce-pipeline/internal/pkg/httputil"
)

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// handleListWebhookLogs returns the webhook log, filterable by
// webhook_type, event_type and processed, paginated with page/per_page.
func (s *Server) handleListWebhookLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := eventstore.Filter{
		WebhookType: q.Get("webhook_type"),
		EventType:   q.Get("event_type"),
		Page:        queryInt(r, "page", 1),
		PerPage:     queryInt(r, "per_page", 50),
	}
	if v := q.Get("processed"); v != "" {
		processed := v == "true"
		f.Processed = &processed
	}

	events, total, err := s.events.Query(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if events == nil {
		events = []domain.WebhookEvent{}
	}
	httputil.OK(w, map[string]any{
		"results":  events,
		"total":    total,
		"page":     f.Page,
		"per_page": f.PerPage,
	})
}

// handleExportWebhookLogs streams the full log as JSON lines.
func (s *Server) handleExportWebhookLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="webhook-logs.jsonl"`)

	enc := json.NewEncoder(w)
	err := s.events.Export(r.Context(), func(batch []domain.WebhookEvent) error {
		for _, e := range batch {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Headers are gone; nothing to do but cut the stream.
		httputil.InternalError(w, err)
	}
}

// handleGetWebhookLog returns one log entry by ID.
func (s *Server) handleGetWebhookLog(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		if errors.Is(err, eventstore.ErrEventNotFound) {
			httputil.NotFound(w, "webhook event not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, event)
}

// handleListBounces returns recorded bounce events, optionally scoped to
// one subscriber.
func (s *Server) handleListBounces(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "per_page", 50)
	page := queryInt(r, "page", 1)
	if limit < 1 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}

	bounces, total, err := s.bounces.ListBounces(r.Context(),
		r.URL.Query().Get("subscriber_id"), limit, (page-1)*limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if bounces == nil {
		bounces = []domain.BounceEvent{}
	}
	httputil.OK(w, map[string]any{
		"results":  bounces,
		"total":    total,
		"page":     page,
		"per_page": limit,
	})
}

// handleBounceCounts returns the per-kind bounce counters for a subscriber.
func (s *Server) handleBounceCounts(w http.ResponseWriter, r *http.Request) {
	subscriberID := chi.URLParam(r, "subscriberID")
	counts, err := s.bounces.BounceCounts(r.Context(), subscriberID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, counts)
}

// handleCampaignCounters returns both counter families for one campaign.
func (s *Server) handleCampaignCounters(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if campaignID == "" {
		httputil.BadRequest(w, "campaign id is required")
		return
	}
	counters, err := s.counters.Counters(r.Context(), campaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, counters)
}

// handleBlocklistBounced runs the administrative sweep and reports how many
// subscribers transitioned.
func (s *Server) handleBlocklistBounced(w http.ResponseWriter, r *http.Request) {
	n, err := s.sweeper.BlocklistBounced(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"blocklisted": n})
}

// handleReconcile triggers an audit and returns the report.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconcile.RunNow(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if report == nil {
		httputil.Error(w, http.StatusConflict, "audit already running, no previous report")
		return
	}
	httputil.OK(w, report)
}

// handleLatestReport returns the most recent audit report.
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report := s.reconcile.Latest()
	if report == nil {
		httputil.NotFound(w, "no audit has run yet")
		return
	}
	httputil.OK(w, report)
}
