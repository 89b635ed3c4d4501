// Package api is the HTTP surface: provider webhook receivers, the webhook
// log and bounce read endpoints, administrative operations and the tracking
// endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/eventstore"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
	"github.com/ignite/bounce-pipeline/internal/reconciler"
	"github.com/ignite/bounce-pipeline/internal/tracking"
)

// Ingestor queues decoded webhook events for processing.
type Ingestor interface {
	Dispatch(event domain.InboundEvent) error
}

// EventLog is the slice of the event store the read endpoints use.
type EventLog interface {
	Query(ctx context.Context, f eventstore.Filter) ([]domain.WebhookEvent, int, error)
	Get(ctx context.Context, id string) (*domain.WebhookEvent, error)
	Export(ctx context.Context, fn func([]domain.WebhookEvent) error) error
}

// BounceLog reads recorded bounce events and per-subscriber counters.
type BounceLog interface {
	ListBounces(ctx context.Context, subscriberID string, limit, offset int) ([]domain.BounceEvent, int, error)
	BounceCounts(ctx context.Context, subscriberID string) (domain.BounceCounts, error)
}

// Counters reads a campaign's engagement counters.
type Counters interface {
	Counters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error)
}

// Sweeper runs the administrative blocklist sweep.
type Sweeper interface {
	BlocklistBounced(ctx context.Context) (int, error)
}

// Reconciling triggers audits and exposes the latest report.
type Reconciling interface {
	RunNow(ctx context.Context) (*reconciler.DiscrepancyReport, error)
	Latest() *reconciler.DiscrepancyReport
}

// Server hosts the HTTP API.
type Server struct {
	events    EventLog
	bounces   BounceLog
	counters  Counters
	sweeper   Sweeper
	reconcile Reconciling
	ingest    Ingestor
	tracking  *tracking.Handler
	webhooks  config.WebhooksConfig

	httpServer *http.Server
}

// NewServer wires the API over its dependencies. tracking may be nil when
// the tracking endpoints are not configured.
func NewServer(events EventLog, bounces BounceLog, counters Counters, sweeper Sweeper, reconcile Reconciling, ingest Ingestor, trackingHandler *tracking.Handler, webhooks config.WebhooksConfig) *Server {
	return &Server{
		events:    events,
		bounces:   bounces,
		counters:  counters,
		sweeper:   sweeper,
		reconcile: reconcile,
		ingest:    ingest,
		tracking:  trackingHandler,
		webhooks:  webhooks,
	}
}

// Start begins serving on the given port. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
