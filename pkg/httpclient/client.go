package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public product API the storefront reads from.
const DefaultBaseURL = "https://fakestoreapi.com"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

var (
	upstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_upstream_attempts_total",
			Help: "Total number of upstream HTTP attempts by outcome",
		},
		[]string{"method", "outcome"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_upstream_request_duration_seconds",
			Help:    "Duration of logical upstream calls, retries and backoff included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Config holds HTTP client configuration
type Config struct {
	BaseURL         string
	Timeout         time.Duration // per attempt
	Retries         int           // extra attempts after the first
	RetryDelay      time.Duration // linear backoff step
	MaxConnsPerHost int
	Debug           bool // log every attempt outcome
}

// DefaultConfig returns the defaults used against the product API.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         10 * time.Second,
		Retries:         3,
		RetryDelay:      time.Second,
		MaxConnsPerHost: 100,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Client at construction time.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// Client issues JSON requests against a single base URL with a per-attempt
// timeout and bounded, linearly backed-off retries.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
	sleep      SleepFunc
	tracer     trace.Tracer
}

// New creates a new HTTP client with retry and connection pooling
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = DefaultConfig().MaxConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(transport)},
		config:     cfg,
		logger:     logger,
		sleep:      sleepContext,
		tracer:     otel.Tracer("github.com/handelsg/dojo-storefront/pkg/httpclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.config
}

// RequestOptions are per-call overrides of the client defaults.
type RequestOptions struct {
	Timeout time.Duration
	Retries *int
	Headers http.Header
}

// RequestOption mutates RequestOptions.
type RequestOption func(*RequestOptions)

// WithTimeout overrides the per-attempt timeout for one call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) { o.Timeout = d }
}

// WithRetries overrides the retry budget for one call. Zero means a single attempt.
func WithRetries(n int) RequestOption {
	return func(o *RequestOptions) { o.Retries = &n }
}

// WithHeader sets a header for one call, replacing the default of the same name.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = make(http.Header)
		}
		o.Headers.Set(key, value)
	}
}

func (c *Client) resolve(opts []RequestOption) (time.Duration, int, http.Header) {
	var ro RequestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	timeout := c.config.Timeout
	if ro.Timeout > 0 {
		timeout = ro.Timeout
	}
	retries := c.config.Retries
	if ro.Retries != nil && *ro.Retries >= 0 {
		retries = *ro.Retries
	}

	headers := http.Header{
		"Content-Type": []string{"application/json"},
		"Accept":       []string{"application/json"},
	}
	for k, v := range ro.Headers {
		headers[k] = v
	}
	return timeout, retries, headers
}

// Do performs one logical call: up to retries+1 attempts, each bounded by the
// timeout, with a wait of RetryDelay*(attempt+1) after every failed attempt
// that still has a successor. On success the JSON body is decoded into out
// (which may be nil). After the last failure an *APIError is returned.
func (c *Client) Do(ctx context.Context, method, endpoint string, body []byte, out any, opts ...RequestOption) error {
	timeout, retries, headers := c.resolve(opts)
	url := c.config.BaseURL + endpoint
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "upstream "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
			attribute.Int("upstream.max_attempts", retries+1),
		),
	)
	defer span.End()
	defer func() {
		upstreamRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		status, err := c.attempt(ctx, method, url, body, headers, timeout, out)
		if err == nil {
			upstreamAttemptsTotal.WithLabelValues(method, "success").Inc()
			span.SetAttributes(attribute.Int("upstream.attempts", attempt+1))
			if c.config.Debug {
				c.logger.InfoContext(ctx, "upstream request succeeded",
					slog.String("endpoint", endpoint),
					slog.Int("attempt", attempt+1),
					slog.Int("status", status),
				)
			}
			return nil
		}

		lastErr = err
		upstreamAttemptsTotal.WithLabelValues(method, "failure").Inc()
		if c.config.Debug {
			c.logger.WarnContext(ctx, "upstream request failed",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", retries+1),
				slog.String("error", err.Error()),
			)
		}

		if attempt < retries {
			if err := c.sleep(ctx, c.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				span.SetStatus(codes.Error, "retry wait aborted")
				return fmt.Errorf("%s %s: wait before retry: %w", method, endpoint, err)
			}
		}
	}

	apiErr := exhausted(retries+1, lastErr)
	span.SetAttributes(attribute.Int("upstream.attempts", retries+1))
	span.RecordError(apiErr)
	span.SetStatus(codes.Error, apiErr.Message)
	return apiErr
}

// attempt runs a single request/response cycle. It returns the response
// status (0 when no response arrived) and a non-nil error on any failure.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, headers http.Header, timeout time.Duration, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", method, err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, ParseResponseError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	// An empty body decodes as JSON null: out is left untouched.
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response body: %w", err)
	}
	return resp.StatusCode, nil
}

// Get performs HTTP GET request with retry
func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

// Post JSON-encodes payload and performs an HTTP POST request with retry.
func (c *Client) Post(ctx context.Context, endpoint string, payload, out any, opts ...RequestOption) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode POST body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts...)
}

// Put JSON-encodes payload and performs an HTTP PUT request with retry.
func (c *Client) Put(ctx context.Context, endpoint string, payload, out any, opts ...RequestOption) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode PUT body: %w", err)
	}
	return c.Do(ctx, http.MethodPut, endpoint, body, out, opts...)
}

// Delete performs HTTP DELETE request with retry
func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out, opts...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
