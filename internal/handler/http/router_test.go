package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handelsg/dojo-storefront/internal/action"
	"github.com/handelsg/dojo-storefront/internal/cache"
	"github.com/handelsg/dojo-storefront/internal/config"
	"github.com/handelsg/dojo-storefront/internal/service"
	"github.com/handelsg/dojo-storefront/pkg/health"
	"github.com/handelsg/dojo-storefront/pkg/httpclient"
)

const catalogJSON = `[
	{"id":1,"title":"Fjallraven Backpack","price":109.95,"description":"Everyday pack","category":"men's clothing","image":"https://img/1.jpg","rating":{"rate":3.9,"count":120}},
	{"id":2,"title":"Smart Phone Case","price":15.99,"description":"Slim case","category":"electronics","image":"https://img/2.jpg","rating":{"rate":4.5,"count":80}},
	{"id":3,"title":"Phone Charger","price":64,"description":"Fast charging","category":"electronics","image":"https://img/3.jpg","rating":{"rate":4.8,"count":300}},
	{"id":4,"title":"Gold Ring","price":168,"description":"Classic ring","category":"jewelery","image":"https://img/4.jpg","rating":{"rate":2.1,"count":10}},
	{"id":5,"title":"Monitor","price":599,"description":"27 inch","category":"electronics","image":"https://img/5.jpg","rating":{"rate":3.0,"count":40}}
]`

// fakeStore imitates the product API. Setting down makes every call 503.
type fakeStore struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if f.down.Load() {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/products":
		_, _ = io.WriteString(w, catalogJSON)
	case "/products/categories":
		_, _ = io.WriteString(w, `["electronics","jewelery","men's clothing"]`)
	case "/products/category/electronics":
		_, _ = io.WriteString(w, `[{"id":2,"title":"Smart Phone Case","price":15.99,"category":"electronics","rating":{"rate":4.5,"count":80}}]`)
	case "/products/category/men's clothing":
		_, _ = io.WriteString(w, `[{"id":1,"title":"Fjallraven Backpack","price":109.95,"category":"men's clothing","rating":{"rate":3.9,"count":120}}]`)
	case "/products/category/50%off":
		_, _ = io.WriteString(w, `[{"id":4,"title":"Gold Ring","price":168,"category":"50%off","rating":{"rate":2.1,"count":10}}]`)
	case "/products/1":
		_, _ = io.WriteString(w, `{"id":1,"title":"Fjallraven Backpack","price":109.95,"category":"men's clothing","rating":{"rate":3.9,"count":120}}`)
	default:
		// The product API answers unknown ids with an empty 200.
		w.WriteHeader(http.StatusOK)
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPublisher) PublishCatalogRevalidated(_ context.Context, path string, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return nil
}

type testEnv struct {
	handler   http.Handler
	store     *fakeStore
	redis     *miniredis.Miniredis
	published *recordingPublisher
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:         "development",
		HTTPHandlerBudget:   5 * time.Second,
		CacheTTL:            time.Minute,
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		CORSAllowedOrigins:  []string{"*"},
		FeaturedLimit:       2,
		MetricsAllowedCIDRs: []string{"127.0.0.0/8"},
		PprofAllowedCIDRs:   []string{"127.0.0.0/8"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	store := &fakeStore{}
	upstream := httptest.NewServer(store)
	t.Cleanup(upstream.Close)

	client := httpclient.New(httpclient.Config{
		BaseURL: upstream.URL,
		Timeout: 2 * time.Second,
		Retries: 0,
	}, logger)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	responses := cache.New(client, rdb, time.Minute, logger)
	published := &recordingPublisher{}
	actions := action.New(service.NewProductService(responses, logger), responses, published, logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", responses.Ping)

	return &testEnv{
		handler:   NewRouter(t.Context(), testConfig(), actions, healthHandler, logger),
		store:     store,
		redis:     mr,
		published: published,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func decodeProductIDs(t *testing.T, raw json.RawMessage) []int {
	t.Helper()
	var products []struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &products))
	ids := make([]int, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func TestListProducts_All(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, decodeProductIDs(t, body.Data))
	assert.Equal(t, "public, max-age=60, stale-while-revalidate=60", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestListProducts_FiltersAndSorts(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet,
		"/api/v1/products?category=Electronics&min_price=10&max_price=100&search=phone&sort_by=price&sort_order=desc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3, 2}, decodeProductIDs(t, body.Data))
}

func TestListProducts_Paginated(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products?page=2&per_page=2&sort_by=rating&sort_order=desc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Products   json.RawMessage `json:"products"`
		Total      int             `json:"total"`
		Page       int             `json:"page"`
		TotalPages int             `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []int{1, 5}, decodeProductIDs(t, page.Products))
}

func TestListProducts_InvalidParameters(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{name: "price not a number", query: "min_price=cheap", wantCode: "INVALID_PARAMETER"},
		{name: "negative price", query: "max_price=-5", wantCode: "VALIDATION_ERROR"},
		{name: "unknown sort field", query: "sort_by=popularity", wantCode: "VALIDATION_ERROR"},
		{name: "unknown sort order", query: "sort_by=price&sort_order=up", wantCode: "VALIDATION_ERROR"},
		{name: "page zero", query: "page=0", wantCode: "INVALID_PARAMETER"},
		{name: "per_page too large", query: "per_page=500", wantCode: "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodGet, "/api/v1/products?"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		})
	}
}

func TestListProducts_InvertedPriceRange(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products?min_price=100&max_price=10", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "must not exceed")
}

func TestListProducts_UpstreamDown(t *testing.T) {
	env := newTestEnv(t)
	env.store.down.Store(true)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, body.Success)
	assert.Equal(t, service.MsgProductsUnavailable, body.Error)
	assert.NotContains(t, rec.Body.String(), "maintenance")
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products/1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var p struct {
		ID    int     `json:"id"`
		Price float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, 109.95, p.Price)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products/999", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "999")
}

func TestGetProduct_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/products/abc", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PARAMETER")
}

func TestFeaturedProducts(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products/featured?limit=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3, 2}, decodeProductIDs(t, body.Data))
}

func TestFeaturedProducts_UpstreamDownIsEmptySuccess(t *testing.T) {
	env := newTestEnv(t)
	env.store.down.Store(true)

	rec, body := env.do(t, http.MethodGet, "/api/v1/products/featured", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestSearchProducts(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/v1/products/search?q=ring", nil)
	assert.Equal(t, []int{4}, decodeProductIDs(t, body.Data))

	before := env.store.calls.Load()
	rec, body := env.do(t, http.MethodGet, "/api/v1/products/search?q=%20%20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(body.Data))
	assert.Equal(t, before, env.store.calls.Load())
}

func TestStaticParams(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/v1/products/static-params", nil)

	assert.JSONEq(t, `[{"id":"1"},{"id":"2"},{"id":"3"},{"id":"4"},{"id":"5"}]`, string(body.Data))
}

// ---------------------------------------------------------------------------
// Categories and overview
// ---------------------------------------------------------------------------

func TestListCategories(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/v1/categories", nil)

	assert.JSONEq(t, `["electronics","jewelery","men's clothing"]`, string(body.Data))
}

func TestProductsByCategory(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/categories/electronics/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, decodeProductIDs(t, body.Data))
}

func TestProductsByCategory_Slug(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/categories/mens-clothing/products",
		"/api/v1/categories/men's%20clothing/products",
	} {
		rec, body := env.do(t, http.MethodGet, target, nil)

		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, []int{1}, decodeProductIDs(t, body.Data), target)
	}
}

func TestProductsByCategory_LiteralPercent(t *testing.T) {
	env := newTestEnv(t)

	// "50%25off" round-trips through the default encoding, so the router
	// sees the already decoded "50%off".
	rec, body := env.do(t, http.MethodGet, "/api/v1/categories/50%25off/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{4}, decodeProductIDs(t, body.Data))
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/overview", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		ProductCount int             `json:"productCount"`
		Categories   []string        `json:"categories"`
		Featured     json.RawMessage `json:"featured"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &overview))
	assert.Equal(t, 5, overview.ProductCount)
	assert.Len(t, overview.Categories, 3)
	assert.Equal(t, []int{3, 2}, decodeProductIDs(t, overview.Featured))
}

// ---------------------------------------------------------------------------
// Cache and revalidation
// ---------------------------------------------------------------------------

func TestResponsesAreCached(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/v1/products", nil)
	env.do(t, http.MethodGet, "/api/v1/products?sort_by=name", nil)
	env.do(t, http.MethodGet, "/api/v1/products/static-params", nil)

	assert.Equal(t, int32(1), env.store.calls.Load())
	assert.True(t, env.redis.Exists(cache.KeyPrefix+"/products"))
}

func TestRevalidate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/products", nil)
	env.do(t, http.MethodGet, "/api/v1/products/1", nil)

	rec, body := env.do(t, http.MethodPost, "/api/v1/revalidate", strings.NewReader(`{"path":"/products/1"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revalidated":true,"path":"/products/1"}`, string(body.Data))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.False(t, env.redis.Exists(cache.KeyPrefix+"/products/1"))
	assert.True(t, env.redis.Exists(cache.KeyPrefix+"/products"))
	assert.Equal(t, []string{"/products/1"}, env.published.paths)
}

func TestRevalidate_EmptyBodyClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/products", nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/revalidate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.redis.Keys())
	assert.Equal(t, []string{""}, env.published.paths)
}

func TestRevalidate_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/revalidate", strings.NewReader(`{"path":"products"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec, _ = env.do(t, http.MethodPost, "/api/v1/revalidate", strings.NewReader(`{"path":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.redis.Close()
	rec, _ = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint_IPAllowlist(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/categories", nil)

	rec, _ := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
