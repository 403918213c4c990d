package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/BackOfficeGo/internal/service"
	"github.com/utafrali/BackOfficeGo/pkg/health"
	"github.com/utafrali/BackOfficeGo/pkg/middleware"
)

// RouterConfig holds the settings the router needs besides its handlers.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig

	// ActiveMaxAge is how long clients may reuse the active-promotions list.
	ActiveMaxAge time.Duration

	// DebugNetworks may reach /debug/pprof. Empty disables it.
	DebugNetworks []string

	// RedeemLimit throttles POST /redeem per terminal.
	RedeemLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(
	promotionService *service.PromotionService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.MountDebug(r, cfg.DebugNetworks, logger)

	h := NewPromotionHandler(promotionService, logger)
	mount(r, h, cfg, logger)

	return r
}

// mount registers the API routes. Static segments are declared before {id}.
func mount(r chi.Router, h *PromotionHandler, cfg RouterConfig, logger *slog.Logger) {
	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Post("/", h.CreatePromotion)
		r.Get("/", h.ListPromotions)
		r.With(middleware.CacheControl(cfg.ActiveMaxAge)).Get("/active", h.ListActivePromotions)
		r.Post("/evaluate", h.Evaluate)
		r.With(middleware.RateLimit(cfg.RedeemLimit, logger)).Post("/redeem", h.Redeem)

		r.Get("/{id}", h.GetPromotion)
		r.Put("/{id}", h.UpdatePromotion)
		r.Post("/{id}/deactivate", h.DeactivatePromotion)
		r.Get("/{id}/usages", h.ListUsages)
	})

	r.Post("/api/v1/usages", h.RecordUsage)
}
