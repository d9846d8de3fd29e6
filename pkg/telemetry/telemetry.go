// Package telemetry wires lightweight OpenTelemetry tracing and RED
// (Rate, Errors, Duration) metrics around the boundary's core operations:
// RedactAndAudit, provider Dispatch, and episode Append/Query. It never
// attaches context content, prompt content, or secrets to a span or metric
// attribute — only identifiers (run_id, call_id, episode_id) and digests.
//
// This package does not pick a wire exporter. Callers construct and
// register whatever TracerProvider/MeterProvider fits their deployment
// (OTLP, stdout, in-memory for tests) before calling New; which exporter
// to ship to is a deployment concern the boundary itself does not need an
// opinion on.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Mindburn-Labs/boundary"

// Provider holds the tracer, meter, and RED instruments used across the
// boundary's packages.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	callCounter    metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New builds a Provider from whatever global trace/metric providers are
// currently registered (via otel.SetTracerProvider/otel.SetMeterProvider).
// If none have been registered, otel's no-op implementations are used, so
// this is always safe to call even when telemetry is disabled.
func New() (*Provider, error) {
	p := &Provider{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	p.callCounter, err = p.meter.Int64Counter("boundary.calls.total",
		metric.WithDescription("Total number of boundary operations processed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	p.errorCounter, err = p.meter.Int64Counter("boundary.errors.total",
		metric.WithDescription("Total number of boundary operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	p.durationHist, err = p.meter.Float64Histogram("boundary.operation.duration",
		metric.WithDescription("Boundary operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Attrs are the only identifiers this package ever attaches to a span or
// metric: run/call/episode identifiers and digests. Never a content field.
type Attrs struct {
	RunID     string
	CallID    string
	EpisodeID string
	Provider  string
	Hash      string
}

func (a Attrs) keyValues() []attribute.KeyValue {
	var out []attribute.KeyValue
	if a.RunID != "" {
		out = append(out, attribute.String("boundary.run_id", a.RunID))
	}
	if a.CallID != "" {
		out = append(out, attribute.String("boundary.call_id", a.CallID))
	}
	if a.EpisodeID != "" {
		out = append(out, attribute.String("boundary.episode_id", a.EpisodeID))
	}
	if a.Provider != "" {
		out = append(out, attribute.String("boundary.provider", a.Provider))
	}
	if a.Hash != "" {
		out = append(out, attribute.String("boundary.hash", a.Hash))
	}
	return out
}

// Track starts a span named name and begins RED bookkeeping for one
// operation. The returned function must be called exactly once with the
// operation's terminal error (nil on success) to end the span and record
// duration/error metrics.
func (p *Provider) Track(ctx context.Context, name string, attrs Attrs) (context.Context, func(error)) {
	start := time.Now()
	kvs := attrs.keyValues()

	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kvs...),
	)
	p.callCounter.Add(ctx, 1, metric.WithAttributes(kvs...))

	return ctx, func(err error) {
		p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(kvs...))
		if err != nil {
			span.RecordError(err)
			p.errorCounter.Add(ctx, 1, metric.WithAttributes(kvs...))
		}
		span.End()
	}
}
