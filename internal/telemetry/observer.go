package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
)

// CommandObserver records worker command outcomes into OpenTelemetry.
type CommandObserver struct {
	tracer trace.Tracer

	commands  metric.Int64Counter
	latency   metric.Float64Histogram
	queueWait metric.Float64Histogram
	restarts  metric.Int64Counter
}

// NewCommandObserver creates an observer bound to the provided meter/tracer.
func NewCommandObserver(meter metric.Meter, tracer trace.Tracer) (*CommandObserver, error) {
	commands, err := meter.Int64Counter(
		"kicad_mcp.worker.commands",
		metric.WithDescription("Number of commands resolved by the dispatcher"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"kicad_mcp.worker.command.duration",
		metric.WithDescription("Time from submit to resolution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	queueWait, err := meter.Float64Histogram(
		"kicad_mcp.worker.queue.wait",
		metric.WithDescription("Time a command spent queued before dispatch in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	restarts, err := meter.Int64Counter(
		"kicad_mcp.worker.restarts",
		metric.WithDescription("Number of worker (re)starts"),
	)
	if err != nil {
		return nil, err
	}

	return &CommandObserver{
		tracer:    tracer,
		commands:  commands,
		latency:   latency,
		queueWait: queueWait,
		restarts:  restarts,
	}, nil
}

// ObserveCommand records one resolved request.
func (o *CommandObserver) ObserveCommand(obs dispatch.Observation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", obs.Operation),
		attribute.String("outcome", string(obs.Outcome)),
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.commands.Add(ctx, 1, options)
	o.latency.Record(ctx, obs.Duration.Seconds(), options)
	if obs.QueueWait > 0 {
		o.queueWait.Record(ctx, obs.QueueWait.Seconds(), metric.WithAttributes(attrs[0]))
	}

	if o.tracer == nil {
		return
	}
	start := obs.Enqueued
	if start.IsZero() {
		start = time.Now().Add(-obs.Duration)
	}
	_, span := o.tracer.Start(ctx, "worker.command",
		trace.WithTimestamp(start),
		trace.WithAttributes(append(attrs, attribute.String("request_id", obs.ID))...),
	)
	if obs.Err != nil {
		span.RecordError(obs.Err)
		span.SetStatus(codes.Error, string(obs.Outcome))
	} else if obs.Outcome == dispatch.OutcomeFailure {
		span.SetStatus(codes.Error, string(obs.Outcome))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(start.Add(obs.Duration)))
}

// ObserveWorkerStart records a worker spawn attempt.
func (o *CommandObserver) ObserveWorkerStart(restart bool, err error) {
	if o == nil {
		return
	}
	o.restarts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("restart", restart),
		attribute.Bool("success", err == nil),
	))
}

var _ dispatch.Observer = (*CommandObserver)(nil)
