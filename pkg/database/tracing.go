package database

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/handelsg/dojo-storefront/pkg/database"

// TracingHook is a go-redis hook that opens a client span per command or
// pipeline and logs commands slower than a threshold.
type TracingHook struct {
	tracer    trace.Tracer
	addr      string
	threshold time.Duration
	logger    *slog.Logger
}

var _ redis.Hook = (*TracingHook)(nil)

// NewTracingHook creates a hook. A zero threshold or nil logger disables slow
// command logging.
func NewTracingHook(addr string, slowThreshold time.Duration, logger *slog.Logger) *TracingHook {
	return &TracingHook{
		tracer:    otel.Tracer(tracerName),
		addr:      addr,
		threshold: slowThreshold,
		logger:    logger,
	}
}

func (h *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, end := h.start(ctx, "redis."+cmd.Name(), cmd.Name(), 1)
		err := next(ctx, cmd)
		end(err)
		return err
	}
}

func (h *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, end := h.start(ctx, "redis.pipeline", "pipeline", len(cmds))
		err := next(ctx, cmds)
		end(err)
		return err
	}
}

func (h *TracingHook) start(ctx context.Context, spanName, operation string, n int) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", operation),
			attribute.String("net.peer.name", h.addr),
			attribute.Int("db.redis.num_cmd", n),
		),
	)

	return ctx, func(err error) {
		// A cache miss is not a failure.
		if err != nil && err != redis.Nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if h.threshold <= 0 || h.logger == nil {
			return
		}
		if elapsed := time.Since(begin); elapsed >= h.threshold {
			h.logger.WarnContext(ctx, "slow redis command",
				slog.String("operation", operation),
				slog.Int("commands", n),
				slog.Duration("duration", elapsed),
			)
		}
	}
}
