package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/MrWong99/speakingbuddy"

// WordIDKey is the span attribute naming the assessed word.
const WordIDKey = attribute.Key("speakingbuddy.word_id")

// Tracer returns the speakingbuddy tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan starts a span named name. The caller ends it, usually through
// [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan ends span and marks it failed when *errp holds an error. Defer it
// with a pointer to the named error result:
//
//	ctx, span := observe.StartSpan(ctx, "assess.extract")
//	defer observe.EndSpan(span, &err)
func EndSpan(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}

// CorrelationID is the trace ID of the span in ctx, or "" without one. It
// is returned to clients in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type wordKey struct{}

// WithWordID tags ctx with the word being assessed. [Logger] adds it to
// every record and the current span gets it as an attribute.
func WithWordID(ctx context.Context, wordID string) context.Context {
	if wordID == "" {
		return ctx
	}
	trace.SpanFromContext(ctx).SetAttributes(WordIDKey.String(wordID))
	return context.WithValue(ctx, wordKey{}, wordID)
}

// WordID returns the word set by [WithWordID].
func WordID(ctx context.Context) string {
	id, _ := ctx.Value(wordKey{}).(string)
	return id
}

// Logger returns the default logger with the request's trace_id, span_id
// and word_id attached, as far as ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := WordID(ctx); id != "" {
		attrs = append(attrs, slog.String("word_id", id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
