package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectdash/dashboard-backend/api/controllers"
	webhookcontrollers "github.com/projectdash/dashboard-backend/api/controllers/webhooks"
	"github.com/projectdash/dashboard-backend/api/middleware"
	"github.com/projectdash/dashboard-backend/pkg/config"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
)

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pipeline webhookcontrollers.Processor
	Ready    controllers.ReadyDeps
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	maxBody := cfg.Webhooks.MaxBodyBytes
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if cfg.Payments.Enabled {
			r.Post("/payments", webhookcontrollers.Webhook(enums.WebhookProviderPayments, p.Pipeline, maxBody, logg))
		}
		if cfg.Identity.Enabled {
			r.Post("/identity", webhookcontrollers.Webhook(enums.WebhookProviderIdentity, p.Pipeline, maxBody, logg))
		}
	})

	return r
}
