package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const instrumentationName = "neurocomp/internal/passes"

// OTelObserver records a span and duration/size histograms per pass on the
// global OpenTelemetry providers and writes one clue log line per pass.
// Instrument creation failures leave the corresponding instrument unset;
// recording is then skipped.
type OTelObserver struct {
	tracer      trace.Tracer
	duration    metric.Float64Histogram
	graphSize   metric.Int64Histogram
	connections metric.Int64Histogram
}

func NewOTelObserver() *OTelObserver {
	meter := otel.Meter(instrumentationName)
	o := &OTelObserver{tracer: otel.Tracer(instrumentationName)}
	if h, err := meter.Float64Histogram("neurocomp.pass.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock duration of one compile pass.")); err == nil {
		o.duration = h
	}
	if h, err := meter.Int64Histogram("neurocomp.graph.populations",
		metric.WithDescription("Population count seen after a pass.")); err == nil {
		o.graphSize = h
	}
	if h, err := meter.Int64Histogram("neurocomp.graph.connections",
		metric.WithDescription("Connection count seen after a pass.")); err == nil {
		o.connections = h
	}
	return o
}

func (o *OTelObserver) PassStarted(ctx context.Context, index int, pass string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "pass "+pass, trace.WithAttributes(
		attribute.String("neurocomp.pass", pass),
		attribute.Int("neurocomp.pass.index", index),
	))
	return ctx
}

func (o *OTelObserver) PassFinished(ctx context.Context, s PassSample) {
	attrs := metric.WithAttributes(
		attribute.String("pass", s.Pass),
		attribute.String("graph", s.Graph),
	)
	if o.duration != nil {
		o.duration.Record(ctx, s.Duration.Seconds(), attrs)
	}
	if o.graphSize != nil {
		o.graphSize.Record(ctx, int64(s.Populations), attrs)
	}
	if o.connections != nil {
		o.connections.Record(ctx, int64(s.Connections), attrs)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("neurocomp.graph.populations", s.Populations),
		attribute.Int("neurocomp.graph.connections", s.Connections),
		attribute.Int("neurocomp.graph.probes", s.Probes),
	)
	fields := []log.Fielder{
		log.KV{K: "msg", V: "pass finished"},
		log.KV{K: "graph", V: s.Graph},
		log.KV{K: "index", V: s.Index},
		log.KV{K: "pass", V: s.Pass},
		log.KV{K: "duration_ms", V: float64(s.Duration.Microseconds()) / 1000},
		log.KV{K: "populations", V: s.Populations},
		log.KV{K: "connections", V: s.Connections},
	}
	if s.Err != nil {
		span.RecordError(s.Err)
		span.SetStatus(codes.Error, s.Err.Error())
		log.Error(ctx, s.Err, fields...)
	} else {
		log.Debug(ctx, fields...)
	}
	span.End()
}
