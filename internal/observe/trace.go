package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/chartvox"

// Span attribute keys for dialogue turns.
const (
	AttrSessionID = attribute.Key("chartvox.session.id")
	AttrSpeaker   = attribute.Key("chartvox.turn.speaker")
	AttrSeeded    = attribute.Key("chartvox.turn.seeded")
	AttrCommits   = attribute.Key("chartvox.turn.commits")
)

// Tracer returns the chartvox tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTurnSpan starts the span covering the classification and commits of
// one accepted utterance of a dialogue session. Archive and sink calls made
// with the returned context become its children. End it with [EndTurnSpan].
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "dialogue.turn",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrSessionID.String(sessionID)),
	)
}

// EndTurnSpan records the outcome of a turn on span and ends it. seeded is
// the field a clinician question asked about, empty otherwise. A non-nil
// err marks the span as failed.
func EndTurnSpan(span trace.Span, speaker, seeded string, commits int, err error) {
	attrs := []attribute.KeyValue{AttrSpeaker.String(speaker), AttrCommits.Int(commits)}
	if seeded != "" {
		attrs = append(attrs, AttrSeeded.String(seeded))
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// Clients see it in the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
