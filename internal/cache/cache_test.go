package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handelsg/dojo-storefront/internal/service"
	apperrors "github.com/handelsg/dojo-storefront/pkg/errors"
	"github.com/handelsg/dojo-storefront/pkg/httpclient"
)

type product struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// countingFetcher answers every call with payload and counts the calls.
type countingFetcher struct {
	payload []product
	err     error
	calls   map[string]int
}

func newCountingFetcher(payload []product) *countingFetcher {
	return &countingFetcher{payload: payload, calls: make(map[string]int)}
}

func (f *countingFetcher) Get(ctx context.Context, endpoint string, out any, opts ...httpclient.RequestOption) error {
	f.calls[endpoint]++
	if f.err != nil {
		return f.err
	}
	*out.(*[]product) = f.payload
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestCache(t *testing.T, next Fetcher) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(next, client, time.Minute, discardLogger()), mr
}

var fixture = []product{{ID: 1, Title: "Backpack"}, {ID: 2, Title: "Ring"}}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestResponseCache_MissThenHit(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	c, mr := setupTestCache(t, upstream)
	ctx := context.Background()

	var first []product
	require.NoError(t, c.Get(ctx, "/products", &first))
	assert.Equal(t, fixture, first)
	assert.True(t, mr.Exists(KeyPrefix+"/products"))
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"/products"))

	var second []product
	require.NoError(t, c.Get(ctx, "/products", &second))
	assert.Equal(t, fixture, second)
	assert.Equal(t, 1, upstream.calls["/products"])
}

func TestResponseCache_ExpiresAfterTTL(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	c, mr := setupTestCache(t, upstream)
	ctx := context.Background()

	var out []product
	require.NoError(t, c.Get(ctx, "/products", &out))
	mr.FastForward(61 * time.Second)
	require.NoError(t, c.Get(ctx, "/products", &out))

	assert.Equal(t, 2, upstream.calls["/products"])
}

func TestResponseCache_UpstreamErrorIsNotCached(t *testing.T) {
	upstream := newCountingFetcher(nil)
	upstream.err = errors.New("connection refused")
	c, mr := setupTestCache(t, upstream)

	var out []product
	err := c.Get(context.Background(), "/products", &out)

	require.EqualError(t, err, "connection refused")
	assert.False(t, mr.Exists(KeyPrefix+"/products"))
}

func TestResponseCache_CorruptEntryFallsBackToUpstream(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	c, mr := setupTestCache(t, upstream)
	require.NoError(t, mr.Set(KeyPrefix+"/products", "{not json"))

	var out []product
	require.NoError(t, c.Get(context.Background(), "/products", &out))

	assert.Equal(t, fixture, out)
	assert.Equal(t, 1, upstream.calls["/products"])
}

// emptyBodyFetcher succeeds without touching out, like the product API
// answering an unknown id with an empty 200.
type emptyBodyFetcher struct{}

func (emptyBodyFetcher) Get(context.Context, string, any, ...httpclient.RequestOption) error {
	return nil
}

func TestResponseCache_PartiallyDecodableEntryDoesNotLeak(t *testing.T) {
	c, mr := setupTestCache(t, emptyBodyFetcher{})
	key := KeyPrefix + "/products/999"
	require.NoError(t, mr.Set(key, `{"id":999,"title":"Ghost","price":"not-a-number"}`))

	products := service.NewProductService(c, discardLogger())
	product, err := products.GetProductByID(context.Background(), "999")

	require.Error(t, err)
	assert.Nil(t, product)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	cached, _ := mr.Get(key)
	assert.NotContains(t, cached, "Ghost")
}

func TestResponseCache_CorruptEntryIsDropped(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	upstream.err = errors.New("connection refused")
	c, mr := setupTestCache(t, upstream)
	require.NoError(t, mr.Set(KeyPrefix+"/products", "{not json"))

	var out []product
	require.Error(t, c.Get(context.Background(), "/products", &out))

	assert.Nil(t, out)
	assert.False(t, mr.Exists(KeyPrefix+"/products"))
}

func TestDecodeInto(t *testing.T) {
	out := product{ID: 7, Title: "Lamp"}
	err := decodeInto([]byte(`{"id":1,"title":42}`), &out)
	require.Error(t, err)
	assert.Equal(t, product{ID: 7, Title: "Lamp"}, out)

	require.NoError(t, decodeInto([]byte(`{"id":1,"title":"Ring"}`), &out))
	assert.Equal(t, product{ID: 1, Title: "Ring"}, out)

	assert.Error(t, decodeInto([]byte(`{}`), out))
}

func TestResponseCache_RedisDownDegradesToUpstream(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	c, mr := setupTestCache(t, upstream)
	mr.Close()

	var out []product
	require.NoError(t, c.Get(context.Background(), "/products", &out))

	assert.Equal(t, fixture, out)
	assert.Equal(t, 1, upstream.calls["/products"])
}

func TestResponseCache_DisabledPassesThrough(t *testing.T) {
	upstream := newCountingFetcher(fixture)
	c := New(upstream, nil, 0, discardLogger())
	ctx := context.Background()

	var out []product
	require.NoError(t, c.Get(ctx, "/products", &out))
	require.NoError(t, c.Get(ctx, "/products", &out))

	assert.False(t, c.Enabled())
	assert.Equal(t, 2, upstream.calls["/products"])

	n, err := c.Invalidate(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, c.Ping(ctx))
}

// ---------------------------------------------------------------------------
// Invalidate
// ---------------------------------------------------------------------------

func seed(t *testing.T, mr *miniredis.Miniredis, endpoints ...string) {
	t.Helper()
	for _, e := range endpoints {
		require.NoError(t, mr.Set(KeyPrefix+e, "[]"))
	}
}

func TestResponseCache_InvalidatePrefix(t *testing.T) {
	c, mr := setupTestCache(t, newCountingFetcher(nil))
	seed(t, mr, "/products", "/products/1", "/products/12", "/products/categories")
	require.NoError(t, mr.Set("cart:user-1", "keep"))

	n, err := c.Invalidate(context.Background(), "/products/1")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists(KeyPrefix+"/products"))
	assert.True(t, mr.Exists(KeyPrefix+"/products/categories"))
	assert.False(t, mr.Exists(KeyPrefix+"/products/1"))
	assert.False(t, mr.Exists(KeyPrefix+"/products/12"))
	assert.True(t, mr.Exists("cart:user-1"))
}

func TestResponseCache_InvalidateAll(t *testing.T) {
	c, mr := setupTestCache(t, newCountingFetcher(nil))
	seed(t, mr, "/products", "/products/1", "/products/categories")
	require.NoError(t, mr.Set("cart:user-1", "keep"))

	n, err := c.Invalidate(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"cart:user-1"}, mr.Keys())
}

func TestResponseCache_InvalidateManyKeys(t *testing.T) {
	c, mr := setupTestCache(t, newCountingFetcher(nil))
	for i := 0; i < 3*scanBatch; i++ {
		require.NoError(t, mr.Set(KeyPrefix+"/products/"+strconv.Itoa(i), "{}"))
	}

	n, err := c.Invalidate(context.Background(), "/products/")

	require.NoError(t, err)
	assert.Equal(t, 3*scanBatch, n)
	assert.Empty(t, mr.Keys())
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `/products/category/a\*b\?\[c\]`, escapeGlob("/products/category/a*b?[c]"))
	assert.Equal(t, "/products", escapeGlob("/products"))
}

func TestResponseCache_Ping(t *testing.T) {
	c, mr := setupTestCache(t, newCountingFetcher(nil))
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
