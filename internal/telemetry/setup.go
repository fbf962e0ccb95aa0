// Package telemetry wires OpenTelemetry tracing and metrics for the bridge.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/lydakis/kicad-mcp/internal/config"
)

const instrumentationName = "github.com/lydakis/kicad-mcp"

// Provider bundles the observer with the shutdown hook of its exporters.
type Provider struct {
	Observer *CommandObserver
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

var newExporter = func(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

var newMetricExporter = func(ctx context.Context, cfg config.TelemetryConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

// metricInterval is how often metrics are pushed to the collector.
const metricInterval = 30 * time.Second

// Setup builds the observer. With no OTLP endpoint configured, spans and
// metrics go to no-op providers.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (*Provider, error) {
	if cfg.OTLPEndpoint == "" {
		meter := metricnoop.NewMeterProvider().Meter(instrumentationName)
		tracer := tracenoop.NewTracerProvider().Tracer(instrumentationName)
		obs, err := NewCommandObserver(meter, tracer)
		if err != nil {
			return nil, err
		}
		return &Provider{Observer: obs}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "kicad-mcp"),
			attribute.String("service.version", version),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry resource: %w", err)
	}

	spanExporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	obs, err := NewCommandObserver(mp.Meter(instrumentationName), tracerFrom(tp))
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	return &Provider{Observer: obs, shutdown: shutdown}, nil
}

func tracerFrom(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(instrumentationName)
}
