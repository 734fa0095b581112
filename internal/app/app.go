package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/handelsg/dojo-storefront/internal/action"
	"github.com/handelsg/dojo-storefront/internal/cache"
	"github.com/handelsg/dojo-storefront/internal/config"
	"github.com/handelsg/dojo-storefront/internal/event"
	handler "github.com/handelsg/dojo-storefront/internal/handler/http"
	"github.com/handelsg/dojo-storefront/internal/service"
	"github.com/handelsg/dojo-storefront/pkg/database"
	"github.com/handelsg/dojo-storefront/pkg/health"
	"github.com/handelsg/dojo-storefront/pkg/httpclient"
	pkgkafka "github.com/handelsg/dojo-storefront/pkg/kafka"
	"github.com/handelsg/dojo-storefront/pkg/tracing"
)

const (
	serviceName    = "storefront"
	serviceVersion = "0.1.0"
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopBackground context.CancelFunc
}

// NewFetcher builds the product API client: retries and per-attempt
// timeouts, behind a circuit breaker when enabled.
func NewFetcher(cfg *config.Config, logger *slog.Logger) service.Fetcher {
	client := httpclient.New(httpclient.Config{
		BaseURL:         cfg.FakeStoreBaseURL,
		Timeout:         cfg.FakeStoreTimeout,
		Retries:         cfg.FakeStoreRetries,
		RetryDelay:      cfg.FakeStoreRetryDelay,
		MaxConnsPerHost: cfg.FakeStoreMaxConns,
		Debug:           cfg.IsDevelopment(),
	}, logger)

	if !cfg.CBEnabled {
		return client
	}

	cbCfg := httpclient.DefaultCircuitBreakerConfig("fakestore")
	cbCfg.Timeout = cfg.CBTimeout
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	return httpclient.NewCircuitBreakerClient(client, cbCfg, logger)
}

// NewApp creates a new application instance, initializing all dependencies.
// Redis is only dialed when the response cache is enabled and Kafka only
// when brokers are configured.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.IsDevelopment(),
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	// Redis-backed response cache.
	if cfg.CacheEnabled {
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.PoolSize = cfg.RedisPoolSize

		rdb, err := database.NewRedisClient(ctx, redisCfg, logger)
		if err != nil {
			a.closeTracer()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		if err := database.RegisterPoolMetrics(rdb, serviceName); err != nil {
			logger.Warn("redis pool metrics not registered", slog.String("error", err.Error()))
		}
		a.rdb = rdb
	}

	// Catalog events.
	var publisher event.Publisher = event.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, cfg.KafkaTopic, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	responses := cache.New(NewFetcher(cfg, logger), a.rdb, cfg.CacheTTL, logger)
	products := service.NewProductService(responses, logger)
	actions := action.New(products, responses, publisher, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	if a.rdb != nil {
		healthHandler.RegisterCritical("redis", responses.Ping)
	}
	healthHandler.RegisterNonCritical("fakestore", func(ctx context.Context) error {
		return dialBaseURL(ctx, cfg.FakeStoreBaseURL)
	})
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	bgCtx, stop := context.WithCancel(context.Background())
	a.stopBackground = stop

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(bgCtx, cfg, actions, healthHandler, logger),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka producer (flush revalidation events)
// 3. Redis client
// 4. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopBackground()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeTracer(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeTracer() error {
	if a.tracerShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// dialBaseURL checks that the product API host accepts TCP connections.
func dialBaseURL(ctx context.Context, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse product API URL: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("product API unreachable: %w", err)
	}
	_ = conn.Close()
	return nil
}
