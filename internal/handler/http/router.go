package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalog-indexer/internal/service"
	"github.com/utafrali/catalog-indexer/pkg/health"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
)

const serviceName = "indexer"

// RouterConfig controls access to the admin surface.
type RouterConfig struct {
	AdminAllowedCIDRs []string
	PprofEnabled      bool
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all indexer routes registered.
func NewRouter(
	indexService *service.IndexService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger, "/health/live", "/health/ready", "/metrics"))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	indexHandler := NewIndexHandler(indexService, logger)

	r.Route("/api/v1/index", func(r chi.Router) {
		r.Use(middleware.IPAllowlist(cfg.AdminAllowedCIDRs, logger))

		r.Get("/status", indexHandler.Status)
		r.Get("/reindex-due", indexHandler.ReindexDue)

		r.Group(func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			r.Post("/products", indexHandler.EnqueueProducts)
			r.Post("/reindex", indexHandler.Reindex)
		})
		r.Post("/products/{id}", indexHandler.EnqueueProduct)
	})

	return r
}
