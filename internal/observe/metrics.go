// Package observe provides application-wide observability primitives for
// chartvox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served by [Handler] so
// that metrics can be scraped via the standard /metrics endpoint. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chartvox metrics.
const meterName = "github.com/MrWong99/chartvox"

// Utterance outcomes for [Metrics.RecordUtterance].
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeEmpty     = "empty"
	OutcomeInterim   = "interim"
	OutcomeIdle      = "idle"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ClassifyDuration tracks the time from a final utterance to its commits.
	ClassifyDuration metric.Float64Histogram

	// Utterances counts recognizer events reaching a session. Use with
	// attribute:
	//   attribute.String("outcome", ...)
	Utterances metric.Int64Counter

	// Turns counts accepted turns by speaker.
	Turns metric.Int64Counter

	// Commits counts commit events. Use with attributes:
	//   attribute.String("category", ...), attribute.String("reason", ...)
	Commits metric.Int64Counter

	// PendingExpired counts pending questions dropped without an answer.
	// Use with attribute:
	//   attribute.String("cause", "turns"|"ttl"|"stop")
	PendingExpired metric.Int64Counter

	// RecognizerRequests counts recognizer stream opens by provider and status.
	RecognizerRequests metric.Int64Counter

	// SinkErrors counts failed commits by sink kind.
	SinkErrors metric.Int64Counter

	// ArchiveWrites counts transcript archive writes by status.
	ArchiveWrites metric.Int64Counter

	// ActiveSessions tracks the number of live dialogue sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// classifyBuckets are histogram bucket boundaries (in seconds) for the
// in-process classification path, which runs in micro- to milliseconds.
var classifyBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ClassifyDuration, err = m.Float64Histogram("chartvox.classify.duration",
		metric.WithDescription("Latency from final utterance to emitted commits."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(classifyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("chartvox.utterances",
		metric.WithDescription("Recognizer events reaching a session, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("chartvox.turns",
		metric.WithDescription("Accepted dialogue turns by speaker."),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("chartvox.commits",
		metric.WithDescription("Commit events by category and reason."),
	); err != nil {
		return nil, err
	}
	if met.PendingExpired, err = m.Int64Counter("chartvox.pending.expired",
		metric.WithDescription("Pending clinician questions dropped without an answer."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRequests, err = m.Int64Counter("chartvox.recognizer.requests",
		metric.WithDescription("Recognizer stream opens by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("chartvox.sink.errors",
		metric.WithDescription("Failed commits by sink."),
	); err != nil {
		return nil, err
	}
	if met.ArchiveWrites, err = m.Int64Counter("chartvox.archive.writes",
		metric.WithDescription("Transcript archive writes by status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("chartvox.active_sessions",
		metric.WithDescription("Number of live dialogue sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("chartvox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// DefaultMetrics returns the process-wide [Metrics], built from
// [otel.GetMeterProvider] on first use. Call [InitProvider] before it so the
// instruments land on the Prometheus exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUtterance counts one recognizer event with its outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTurn counts one accepted turn.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

// RecordCommit counts one commit event.
func (m *Metrics) RecordCommit(ctx context.Context, category, reason string) {
	m.Commits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("reason", reason),
		),
	)
}

// RecordPendingExpired counts one pending question dropped for cause.
func (m *Metrics) RecordPendingExpired(ctx context.Context, cause string) {
	m.PendingExpired.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordRecognizerRequest counts one recognizer stream open.
func (m *Metrics) RecordRecognizerRequest(ctx context.Context, provider, status string) {
	m.RecognizerRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordSinkError counts one failed commit.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordArchiveWrite counts one archive write.
func (m *Metrics) RecordArchiveWrite(ctx context.Context, status string) {
	m.ArchiveWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
