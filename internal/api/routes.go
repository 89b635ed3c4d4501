package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/bounce-pipeline/internal/pkg/httputil"
)

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Provider webhook receivers. These answer 200 once the payload is
	// queued; processing outcomes land in the webhook log, not the response.
	r.Route("/webhooks", func(r chi.Router) {
		if s.webhooks.SparkPostEnabled {
			r.Post("/sparkpost", s.handleSparkPostWebhook)
		}
		if s.webhooks.SESEnabled {
			r.Post("/ses", s.handleSESWebhook)
		}
		if s.webhooks.MailgunEnabled {
			r.Post("/mailgun", s.handleMailgunWebhook)
		}
		if s.webhooks.GenericEnabled {
			r.Post("/bounce", s.handleGenericWebhook)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/webhook-logs", s.handleListWebhookLogs)
		r.Get("/webhook-logs/export", s.handleExportWebhookLogs)
		r.Get("/webhook-logs/{eventID}", s.handleGetWebhookLog)
		r.Get("/bounces", s.handleListBounces)
		r.Get("/campaigns/{campaignID}/counters", s.handleCampaignCounters)
		r.Get("/subscribers/{subscriberID}/bounce-counts", s.handleBounceCounts)
		r.Post("/subscribers/blocklist-bounced", s.handleBlocklistBounced)
		r.Post("/reconcile", s.handleReconcile)
		r.Get("/reconcile/latest", s.handleLatestReport)
	})

	if s.tracking != nil {
		r.Mount("/track", s.tracking.Routes())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
