package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lydakis/kicad-mcp/internal/config"
	"github.com/lydakis/kicad-mcp/internal/dispatch"
)

func configWithEndpoint(ep string) config.TelemetryConfig {
	return config.TelemetryConfig{OTLPEndpoint: ep, Insecure: true}
}

// keepSpans stops Shutdown from resetting the recorded spans.
type keepSpans struct{ *tracetest.InMemoryExporter }

func (keepSpans) Shutdown(context.Context) error { return nil }

// metricNames records the instrument names of every export.
type metricNames struct {
	mu    sync.Mutex
	names map[string]bool
}

func (m *metricNames) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (m *metricNames) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (m *metricNames) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			m.names[md.Name] = true
		}
	}
	return nil
}

func (m *metricNames) ForceFlush(context.Context) error { return nil }
func (m *metricNames) Shutdown(context.Context) error   { return nil }

func (m *metricNames) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[name]
}

func stubMetricExporter(t *testing.T) *metricNames {
	t.Helper()
	m := &metricNames{names: map[string]bool{}}
	old := newMetricExporter
	t.Cleanup(func() { newMetricExporter = old })
	newMetricExporter = func(context.Context, config.TelemetryConfig) (sdkmetric.Exporter, error) {
		return m, nil
	}
	return m
}

func TestSetupExportsSpansThroughConfiguredExporter(t *testing.T) {
	metrics := stubMetricExporter(t)
	exporter := tracetest.NewInMemoryExporter()
	old := newExporter
	defer func() { newExporter = old }()

	var gotEndpoint string
	newExporter = func(_ context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
		gotEndpoint = cfg.OTLPEndpoint
		return keepSpans{exporter}, nil
	}

	p, err := Setup(context.Background(), configWithEndpoint("localhost:4318"), "1.2.3")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if gotEndpoint != "localhost:4318" {
		t.Fatalf("exporter endpoint = %q, want localhost:4318", gotEndpoint)
	}

	p.Observer.ObserveCommand(dispatch.Observation{
		ID:        "req-1",
		Operation: "export_gerber",
		Outcome:   dispatch.OutcomeSuccess,
		Enqueued:  time.Now(),
		Duration:  time.Millisecond,
	})

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "worker.command" {
		t.Fatalf("exported spans = %+v, want one worker.command span", spans)
	}
	if !metrics.has("kicad_mcp.worker.commands") || !metrics.has("kicad_mcp.worker.command.duration") {
		t.Fatalf("exported metrics = %v, want command counter and duration", metrics.names)
	}
}
