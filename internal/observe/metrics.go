// Package observe provides application-wide observability primitives for
// callsift: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Init] bridges
// them to a Prometheus exporter so they land on the standard /metrics scrape
// endpoint. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callsift metrics.
const meterName = "github.com/callsift/callsift"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// MatchDuration tracks end-to-end keyword matching latency for one
	// conversation.
	MatchDuration metric.Float64Histogram

	// ExportDuration tracks spreadsheet export latency, including the
	// containment scan.
	ExportDuration metric.Float64Histogram

	// --- Counters ---

	// MatchRequests counts match runs. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	MatchRequests metric.Int64Counter

	// SegmentsScanned counts transcript segments fed through the engine.
	SegmentsScanned metric.Int64Counter

	// KeywordsMatched counts keyword hits by role. Use with attribute:
	//   attribute.String("role", ...)
	KeywordsMatched metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// in-memory matching over transcripts of a few hundred segments.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.MatchDuration, err = m.Float64Histogram("callsift.match.duration",
		metric.WithDescription("Latency of one keyword matching run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("callsift.export.duration",
		metric.WithDescription("Latency of one spreadsheet export."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.MatchRequests, err = m.Int64Counter("callsift.match.requests",
		metric.WithDescription("Total match runs by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsScanned, err = m.Int64Counter("callsift.segments.scanned",
		metric.WithDescription("Total transcript segments scanned by the engine."),
	); err != nil {
		return nil, err
	}
	if met.KeywordsMatched, err = m.Int64Counter("callsift.keywords.matched",
		metric.WithDescription("Total keyword hits by speaker role."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("callsift.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMatchRequest records one match run with the standard attribute set.
func (m *Metrics) RecordMatchRequest(ctx context.Context, mode, status string) {
	m.MatchRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordKeywordHits records keyword hits attributed to one speaker role.
func (m *Metrics) RecordKeywordHits(ctx context.Context, role string, n int64) {
	if n == 0 {
		return
	}
	m.KeywordsMatched.Add(ctx, n,
		metric.WithAttributes(attribute.String("role", role)),
	)
}
