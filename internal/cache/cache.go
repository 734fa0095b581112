package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/handelsg/dojo-storefront/pkg/httpclient"
	"github.com/handelsg/dojo-storefront/pkg/logger"
)

// KeyPrefix namespaces every cached upstream response.
const KeyPrefix = "storefront:upstream:"

// DefaultTTL is how long a successful response is served from cache.
const DefaultTTL = 60 * time.Second

const scanBatch = 100

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_cache_lookups_total",
		Help: "Response cache lookups by result (hit, miss, error)",
	},
	[]string{"result"},
)

// Fetcher is the upstream the cache sits in front of.
type Fetcher interface {
	Get(ctx context.Context, endpoint string, out any, opts ...httpclient.RequestOption) error
}

// ResponseCache caches decoded GET responses from the product API in Redis.
// Redis failures are logged and the call goes straight to the upstream. A
// ResponseCache without a Redis client passes every call through.
type ResponseCache struct {
	next   Fetcher
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a response cache in front of next. A nil client disables
// caching.
func New(next Fetcher, client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Enabled reports whether responses are cached.
func (c *ResponseCache) Enabled() bool {
	return c.client != nil
}

// Get serves endpoint from Redis when present and otherwise asks the
// upstream, storing the decoded result on success. Failed upstream calls are
// never cached.
func (c *ResponseCache) Get(ctx context.Context, endpoint string, out any, opts ...httpclient.RequestOption) error {
	if !c.Enabled() {
		return c.next.Get(ctx, endpoint, out, opts...)
	}

	key := KeyPrefix + endpoint
	l := logger.WithContext(ctx, c.logger)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		decodeErr := decodeInto(data, out)
		if decodeErr == nil {
			lookupsTotal.WithLabelValues("hit").Inc()
			return nil
		}
		l.WarnContext(ctx, "discarding undecodable cache entry",
			slog.String("key", key),
			slog.String("error", decodeErr.Error()),
		)
		lookupsTotal.WithLabelValues("error").Inc()
		if err := c.client.Del(ctx, key).Err(); err != nil {
			l.WarnContext(ctx, "cache delete failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	case errors.Is(err, redis.Nil):
		lookupsTotal.WithLabelValues("miss").Inc()
	default:
		l.WarnContext(ctx, "cache read failed, using upstream",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		lookupsTotal.WithLabelValues("error").Inc()
	}

	if err := c.next.Get(ctx, endpoint, out, opts...); err != nil {
		return err
	}

	payload, err := json.Marshal(out)
	if err != nil {
		l.WarnContext(ctx, "cannot encode response for cache", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		l.WarnContext(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Invalidate deletes every cached response whose endpoint starts with
// prefix; an empty prefix clears the whole cache. It returns the number of
// deleted entries.
func (c *ResponseCache) Invalidate(ctx context.Context, prefix string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	pattern := KeyPrefix + escapeGlob(prefix) + "*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del cached responses: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks the Redis connection.
func (c *ResponseCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// decodeInto decodes data into a fresh value of out's element type and
// stores it in out only when decoding succeeds, so a half-decoded entry
// never leaks into the caller's value.
func decodeInto(data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode cache entry: non-nil pointer required, got %T", out)
	}

	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		return fmt.Errorf("decode cache entry: %w", err)
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
