package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	pkgconfig "github.com/handelsg/dojo-storefront/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort          int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	HTTPHandlerBudget time.Duration `env:"HTTP_HANDLER_TIMEOUT" envDefault:"55s"`

	// Product API
	FakeStoreBaseURL    string        `env:"FAKESTORE_BASE_URL" envDefault:"https://fakestoreapi.com"`
	FakeStoreTimeout    time.Duration `env:"FAKESTORE_TIMEOUT" envDefault:"10s"`
	FakeStoreRetries    int           `env:"FAKESTORE_RETRIES" envDefault:"3"`
	FakeStoreRetryDelay time.Duration `env:"FAKESTORE_RETRY_DELAY" envDefault:"1s"`
	FakeStoreMaxConns   int           `env:"FAKESTORE_MAX_CONNS_PER_HOST" envDefault:"100"`

	// Circuit breaker around the product API
	CBEnabled      bool          `env:"CB_ENABLED" envDefault:"true"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Response cache
	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"false"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"60s"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	// Kafka (revalidation events); empty disables publishing
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"storefront.catalog"`

	// Rate limiting (per client IP)
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Featured list size of the overview endpoint
	FeaturedLimit int `env:"FEATURED_LIMIT" envDefault:"4"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Operational endpoints (IP allowlists in CIDR notation)
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
	PprofAllowedCIDRs   []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode, which
// enables per-attempt upstream logging.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if u, err := url.Parse(c.FakeStoreBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FAKESTORE_BASE_URL must be an absolute URL, got %q", c.FakeStoreBaseURL)
	}
	if c.FakeStoreTimeout <= 0 {
		return fmt.Errorf("FAKESTORE_TIMEOUT must be positive, got %s", c.FakeStoreTimeout)
	}
	if c.FakeStoreRetries < 0 {
		return fmt.Errorf("FAKESTORE_RETRIES must not be negative, got %d", c.FakeStoreRetries)
	}
	if c.FakeStoreRetryDelay < 0 {
		return fmt.Errorf("FAKESTORE_RETRY_DELAY must not be negative, got %s", c.FakeStoreRetryDelay)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio)
	}
	if c.CacheEnabled {
		if c.CacheTTL <= 0 {
			return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
		}
		if c.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required when CACHE_ENABLED is set")
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.FeaturedLimit < 1 {
		return fmt.Errorf("FEATURED_LIMIT must be at least 1, got %d", c.FeaturedLimit)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for _, cidrs := range [][]string{c.MetricsAllowedCIDRs, c.PprofAllowedCIDRs} {
		for _, cidr := range cidrs {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("invalid CIDR %q: %w", cidr, err)
			}
		}
	}
	return nil
}
