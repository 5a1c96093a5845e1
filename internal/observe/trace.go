package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/fluency"

type (
	assessmentKey  struct{}
	correlationKey struct{}
)

// Tracer returns the service tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// WithAssessmentID tags ctx with the ID of the assessment it serves. Loggers
// derived from ctx via [Logger] carry it as assessment_id.
func WithAssessmentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, assessmentKey{}, id)
}

// AssessmentID returns the ID set by [WithAssessmentID], or "".
func AssessmentID(ctx context.Context) string {
	id, _ := ctx.Value(assessmentKey{}).(string)
	return id
}

// CorrelationID is the hex trace ID of the span in ctx. Without a valid
// span it is the ID stored by [Middleware], or "". HTTP responses echo it as
// X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// withCorrelationID stores a correlation ID for requests whose span carries
// no trace ID, as happens under the no-op tracer provider.
func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Logger returns the default logger annotated with whatever ctx knows: the
// trace and span IDs of its span, or the fallback correlation ID, and the
// assessment ID.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	} else if cid, _ := ctx.Value(correlationKey{}).(string); cid != "" {
		attrs = append(attrs, slog.String("correlation_id", cid))
	}
	if id := AssessmentID(ctx); id != "" {
		attrs = append(attrs, slog.String("assessment_id", id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
