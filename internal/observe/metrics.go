// Package observe provides the observability primitives of the fluency
// service: OpenTelemetry metrics and tracing, trace-aware slog logging, and
// the HTTP middleware that ties them together.
//
// Instruments are created from the global meter provider by [DefaultMetrics]
// and exported to Prometheus once [InitProvider] has run. Tests build their
// own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/fluency"

// Metrics holds every instrument of the service. The Record helpers keep
// attribute sets consistent; prefer them over the raw fields.
type Metrics struct {
	// AssessmentDuration and Assessments carry "outcome": "ok" or an error
	// kind such as "empty_transcript".
	AssessmentDuration metric.Float64Histogram
	Assessments        metric.Int64Counter

	// AccuracyPercent is recorded for successful reports only.
	AccuracyPercent metric.Float64Histogram

	// ActiveAssessments is the number of assessments in flight.
	ActiveAssessments metric.Int64UpDownCounter

	// STTDuration and ProviderRequests carry "provider"; requests also carry
	// "status".
	STTDuration      metric.Float64Histogram
	ProviderRequests metric.Int64Counter

	// BreakerTransitions carries "provider" and the new state as "to".
	BreakerTransitions metric.Int64Counter

	// ToolDuration and ToolCalls carry "tool"; calls also carry "status".
	ToolDuration metric.Float64Histogram
	ToolCalls    metric.Int64Counter

	// HTTPRequestDuration carries "method", "path" (the route pattern) and
	// "status" (the status class).
	HTTPRequestDuration metric.Float64Histogram
}

// Seconds; transcription of a minute of audio can take several.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Reading bands, finer near the top.
var accuracyBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 98, 100}

// instruments collects creation errors so NewMetrics reports all of them.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) histogram(name, desc, unit string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(unit)}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		AssessmentDuration:  in.histogram("fluency.assessment.duration", "End-to-end latency of a reading assessment.", "s", latencyBuckets),
		Assessments:         in.counter("fluency.assessments", "Finished assessments by outcome."),
		AccuracyPercent:     in.histogram("fluency.report.accuracy", "Accuracy of successful assessments.", "%", accuracyBuckets),
		STTDuration:         in.histogram("fluency.stt.duration", "Latency of one speech-to-text request.", "s", latencyBuckets),
		ProviderRequests:    in.counter("fluency.provider.requests", "Speech-to-text requests by provider and status."),
		BreakerTransitions:  in.counter("fluency.breaker.transitions", "Circuit breaker state changes by provider and new state."),
		ToolDuration:        in.histogram("fluency.tool.duration", "Latency of MCP tool calls.", "s", latencyBuckets),
		ToolCalls:           in.counter("fluency.tool.calls", "MCP tool calls by tool and status."),
		HTTPRequestDuration: in.histogram("fluency.http.request.duration", "HTTP request latency by method, route and status class.", "s", nil),
	}
	var err error
	m.ActiveAssessments, err = in.meter.Int64UpDownCounter("fluency.active_assessments",
		metric.WithDescription("Assessments currently in flight."))
	in.errs = append(in.errs, err)

	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments on the global meter provider, created
// on first use. It panics if they cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAssessment records one finished assessment. A negative accuracy
// skips the accuracy distribution.
func (m *Metrics) RecordAssessment(ctx context.Context, outcome string, seconds, accuracy float64) {
	attrs := metric.WithAttributes(Attr("outcome", outcome))
	m.Assessments.Add(ctx, 1, attrs)
	m.AssessmentDuration.Record(ctx, seconds, attrs)
	if accuracy >= 0 {
		m.AccuracyPercent.Record(ctx, accuracy)
	}
}

// RecordTranscription records one request to a speech backend.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration, err error) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("status", status(err))))
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider)))
}

// RecordBreakerTransition counts a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("to", to)))
}

// RecordToolCall records one MCP tool call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, err error) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status(err))))
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
}
