package observe

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// fiberCarrier adapts a Fiber request or response header set to the OTel
// [propagation.TextMapCarrier] interface.
type fiberCarrier struct {
	get  func(key string) string
	set  func(key, value string)
	keys func() []string
}

func (c fiberCarrier) Get(key string) string { return c.get(key) }
func (c fiberCarrier) Set(key, value string) { c.set(key, value) }
func (c fiberCarrier) Keys() []string        { return c.keys() }

func requestCarrier(c fiber.Ctx) fiberCarrier {
	return fiberCarrier{
		get: func(key string) string { return c.Get(key) },
		set: func(key, value string) { c.Request().Header.Set(key, value) },
		keys: func() []string {
			var keys []string
			for k := range c.GetReqHeaders() {
				keys = append(keys, k)
			}
			return keys
		},
	}
}

// Middleware returns a Fiber handler that:
//
//  1. Extracts W3C Trace Context from incoming request headers (or starts a
//     new trace).
//  2. Starts an OTel span for the HTTP request.
//  3. Sets the X-Correlation-ID response header from the trace ID.
//  4. Records request duration to [Metrics.HTTPRequestDuration].
//  5. Logs request completion with status code, duration, and trace info.
//  6. Ends the span on completion with status attributes.
func Middleware(m *Metrics) fiber.Handler {
	prop := propagation.TraceContext{}

	return func(c fiber.Ctx) error {
		start := time.Now()
		method := c.Method()
		path := c.Path()

		ctx := prop.Extract(c.Context(), requestCarrier(c))

		ctx, span := StartSpan(ctx, "HTTP "+method+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(method),
				semconv.URLPath(path),
			),
		)
		defer span.End()

		cid := CorrelationID(ctx)
		if cid != "" {
			c.Set("X-Correlation-ID", cid)
		}

		c.SetContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		duration := time.Since(start)
		m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)

		span.SetAttributes(semconv.HTTPResponseStatusCode(status))

		slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
			slog.String("trace_id", cid),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		)

		return err
	}
}
