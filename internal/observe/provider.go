package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitOption adjusts the telemetry bootstrap performed by [Init].
type InitOption func(*initSettings)

type initSettings struct {
	serviceName    string
	serviceVersion string
	traceExporter  sdktrace.SpanExporter
}

// WithServiceName overrides the service name reported in telemetry.
// Default: "callsift".
func WithServiceName(name string) InitOption {
	return func(s *initSettings) {
		s.serviceName = name
	}
}

// WithServiceVersion sets the service version reported in telemetry.
func WithServiceVersion(version string) InitOption {
	return func(s *initSettings) {
		s.serviceVersion = version
	}
}

// WithTraceExporter sets a span exporter, typically OTLP. Without one, spans
// are still recorded in-process (so correlation IDs and the fiber middleware
// keep working) but never leave the service.
func WithTraceExporter(exp sdktrace.SpanExporter) InitOption {
	return func(s *initSettings) {
		s.traceExporter = exp
	}
}

// Init registers the global OTel meter and tracer providers for the service.
// Metrics flow through a Prometheus exporter so the match and HTTP
// instruments end up on the /metrics scrape endpoint; tracing is wired per
// [WithTraceExporter].
//
// The returned function flushes and shuts both providers down; defer it from
// main.
func Init(ctx context.Context, opts ...InitOption) (func(context.Context) error, error) {
	s := initSettings{serviceName: "callsift"}
	for _, o := range opts {
		o(&s)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	reader, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if s.traceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(s.traceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
