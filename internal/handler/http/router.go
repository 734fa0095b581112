package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/handelsg/dojo-storefront/internal/action"
	"github.com/handelsg/dojo-storefront/internal/config"
	"github.com/handelsg/dojo-storefront/pkg/health"
	"github.com/handelsg/dojo-storefront/pkg/middleware"
)

const serviceName = "storefront"

// NewRouter creates a chi router with global middleware, operational
// endpoints and the storefront API. ctx bounds background work of the
// middleware (rate limiter cleanup).
func NewRouter(ctx context.Context, cfg *config.Config, actions *action.Actions, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ExposedHeaders: []string{middleware.CorrelationHeader},
		MaxAge:         3600,
		Environment:    cfg.Environment,
	}))
	r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.HTTPHandlerBudget))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Metrics and pprof behind IP allowlists.
	middleware.RegisterMetrics(r, cfg.MetricsAllowedCIDRs, logger)
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	productHandler := NewProductHandler(actions, cfg.FeaturedLimit, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CacheControl(cfg.CacheTTL))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/featured", productHandler.FeaturedProducts)
			r.Get("/search", productHandler.SearchProducts)
			r.Get("/static-params", productHandler.StaticParams)
			r.Get("/{id}", productHandler.GetProduct)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", productHandler.ListCategories)
			r.Get("/{category}/products", productHandler.ProductsByCategory)
		})

		r.Get("/overview", productHandler.Overview)
		r.Post("/revalidate", productHandler.Revalidate)
	})

	return r
}
