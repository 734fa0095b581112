package database

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedClient(t *testing.T, threshold time.Duration, logger *slog.Logger) (*redis.Client, *tracetest.SpanRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	hook := NewTracingHook(mr.Addr(), threshold, logger)
	hook.tracer = tp.Tracer(tracerName)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client.AddHook(hook)
	t.Cleanup(func() { _ = client.Close() })
	return client, recorder
}

func TestTracingHook_CommandSpan(t *testing.T) {
	client, recorder := newTracedClient(t, 0, nil)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	var found bool
	for _, s := range recorder.Ended() {
		if s.Name() != "redis.set" {
			continue
		}
		found = true
		assert.Equal(t, codes.Unset, s.Status().Code)
		attrs := make(map[string]string)
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, "redis", attrs["db.system"])
		assert.Equal(t, "set", attrs["db.operation"])
	}
	assert.True(t, found, "expected a redis.set span")
}

func TestTracingHook_MissIsNotAnError(t *testing.T) {
	client, recorder := newTracedClient(t, 0, nil)

	err := client.Get(context.Background(), "missing").Err()
	require.ErrorIs(t, err, redis.Nil)

	for _, s := range recorder.Ended() {
		if s.Name() == "redis.get" {
			assert.Equal(t, codes.Unset, s.Status().Code)
			return
		}
	}
	t.Fatal("expected a redis.get span")
}

func TestTracingHook_PipelineSpan(t *testing.T) {
	client, recorder := newTracedClient(t, 0, nil)

	_, err := client.Pipelined(context.Background(), func(p redis.Pipeliner) error {
		p.Set(context.Background(), "a", "1", 0)
		p.Set(context.Background(), "b", "2", 0)
		return nil
	})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "redis.pipeline")
}

func TestTracingHook_LogsSlowCommands(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Every command exceeds a 1ns threshold.
	client, _ := newTracedClient(t, time.Nanosecond, logger)
	require.NoError(t, client.Ping(context.Background()).Err())

	assert.Contains(t, buf.String(), "slow redis command")
	assert.Contains(t, buf.String(), `"operation":"ping"`)
}
