// Package observe provides observability primitives for the voicepick
// engine: OpenTelemetry metrics, lightweight tracing helpers, and HTTP
// middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported via
// a Prometheus bridge (see [InitProvider]) so they can be scraped from the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) exists for convenience; tests should use [NewMetrics]
// with their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all voicepick metrics.
const meterName = "github.com/okarinen/voicepick"

// Match outcome attribute values recorded by [Metrics.RecordTurn].
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
)

// Metrics holds all OpenTelemetry metric instruments for the engine. The
// underlying OTel types are safe for concurrent use.
type Metrics struct {
	// TurnDuration tracks the latency of one voice turn, measured from the
	// start of listening to the end of transcript processing.
	TurnDuration metric.Float64Histogram

	// MatchResults counts processed final transcripts. Use with attribute
	// "outcome": matched (categories accumulated), fallback (no token match,
	// filter view published), or empty (fallback found nothing either).
	MatchResults metric.Int64Counter

	// RecognizerErrors counts listening turns ended by a recognizer error.
	RecognizerErrors metric.Int64Counter

	// Selections counts selection mutations. Use with attribute "source":
	// "toggle" or "voice".
	Selections metric.Int64Counter

	// ActiveListening tracks whether a recognition stream is currently open
	// (0 or 1 under the single-listener invariant).
	ActiveListening metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// interactive voice turns.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("voicepick.turn.duration",
		metric.WithDescription("Duration of a voice turn from listen start to processed transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchResults, err = m.Int64Counter("voicepick.match.results",
		metric.WithDescription("Processed final transcripts by match outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("voicepick.recognizer.errors",
		metric.WithDescription("Listening turns terminated by a recognizer error."),
	); err != nil {
		return nil, err
	}
	if met.Selections, err = m.Int64Counter("voicepick.selection.mutations",
		metric.WithDescription("Selection set mutations by source."),
	); err != nil {
		return nil, err
	}
	if met.ActiveListening, err = m.Int64UpDownCounter("voicepick.listening.active",
		metric.WithDescription("Open recognition streams (0 or 1)."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicepick.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails,
// which cannot happen with the global provider.
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

// RecordTurn records one processed voice turn with its outcome attribute.
func (m *Metrics) RecordTurn(ctx context.Context, seconds float64, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TurnDuration.Record(ctx, seconds, attrs)
	m.MatchResults.Add(ctx, 1, attrs)
}

// RecordSelection records a selection mutation from the given source.
func (m *Metrics) RecordSelection(ctx context.Context, source string) {
	m.Selections.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
