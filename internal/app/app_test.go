package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handelsg/dojo-storefront/internal/config"
	"github.com/handelsg/dojo-storefront/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/products":
			_, _ = io.WriteString(w, `[{"id":7,"title":"Desk Lamp","price":19.5,"category":"home","rating":{"rate":4.2,"count":9}}]`)
		case "/products/categories":
			_, _ = io.WriteString(w, `["home"]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Environment:         "test",
		HTTPPort:            8080,
		HTTPReadTimeout:     time.Second,
		HTTPWriteTimeout:    time.Second,
		HTTPHandlerBudget:   time.Second,
		FakeStoreBaseURL:    upstreamURL,
		FakeStoreTimeout:    time.Second,
		FakeStoreMaxConns:   4,
		CBTimeout:           time.Second,
		CBFailureRatio:      0.5,
		CBMinRequests:       5,
		CacheTTL:            time.Minute,
		RedisPoolSize:       2,
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		CORSAllowedOrigins:  []string{"*"},
		FeaturedLimit:       4,
		OTELSampleRate:      1,
		MetricsAllowedCIDRs: []string{"127.0.0.0/8"},
		PprofAllowedCIDRs:   []string{"127.0.0.0/8"},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "127.0.0.1:9000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewFetcher_CircuitBreakerToggle(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")

	cfg.CBEnabled = true
	_, ok := NewFetcher(cfg, testLogger()).(*httpclient.CircuitBreakerClient)
	assert.True(t, ok)

	cfg.CBEnabled = false
	_, ok = NewFetcher(cfg, testLogger()).(*httpclient.Client)
	assert.True(t, ok)
}

func TestNewApp_WithoutCache(t *testing.T) {
	upstream := newUpstream(t)
	a, err := NewApp(baseConfig(upstream.URL), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	assert.Nil(t, a.rdb)
	assert.Nil(t, a.producer)

	rec := get(t, a.Handler(), "/api/v1/products")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"success":true,"data":[{"id":7,"title":"Desk Lamp","price":19.5,"image":"","category":"home","description":"","rating":{"rate":4.2,"count":9}}]}`,
		rec.Body.String())

	rec = get(t, a.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "up", ready.Status)
	assert.Contains(t, ready.Checks, "fakestore")
	assert.NotContains(t, ready.Checks, "redis")
}

func TestNewApp_WithCache(t *testing.T) {
	upstream := newUpstream(t)
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cfg := baseConfig(upstream.URL)
	cfg.CacheEnabled = true
	cfg.RedisHost = host
	cfg.RedisPort, err = strconv.Atoi(port)
	require.NoError(t, err)

	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	require.NotNil(t, a.rdb)

	rec := get(t, a.Handler(), "/api/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists("storefront:upstream:/products/categories"))

	rec = get(t, a.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.CacheEnabled = true
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = 1

	_, err := NewApp(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	upstream := newUpstream(t)
	cfg := baseConfig(upstream.URL)
	a, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	a.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDialBaseURL(t *testing.T) {
	upstream := newUpstream(t)
	assert.NoError(t, dialBaseURL(context.Background(), upstream.URL))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	assert.Error(t, dialBaseURL(context.Background(), "http://"+addr))
	assert.Error(t, dialBaseURL(context.Background(), "://bad"))
}
