package observability

import (
	"context"
	"errors"
	"testing"

	servertiming "github.com/mitchellh/go-server-timing"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.serviceName != DefaultServiceName {
		t.Errorf("serviceName = %q, want %q", cfg.serviceName, DefaultServiceName)
	}
	if cfg.tracerProvider == nil || cfg.meterProvider == nil || cfg.logger == nil {
		t.Fatal("NewConfig() left a provider or the logger nil")
	}
	if cfg.ServerTimingEnabled() {
		t.Error("ServerTimingEnabled() = true, want false")
	}
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
}

func TestReadLifecycle(t *testing.T) {
	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
		WithServiceName("reader-test"),
		WithServiceVersion("0.0.1"),
	)
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	ctx, read := cfg.StartRead(context.Background(), "resource")
	if ctx == nil || read == nil {
		t.Fatal("StartRead() returned nil")
	}
	read.End(ctx, 3, "", nil)

	ctx, read = cfg.StartRead(context.Background(), "property")
	read.End(ctx, 1, "RecursionLimit", errors.New("too deep"))
}

func TestNilConfigIsNoop(t *testing.T) {
	var cfg *Config
	ctx, read := cfg.StartRead(context.Background(), "collection")
	read.End(ctx, 0, "", nil)
	if cfg.ServerTimingEnabled() {
		t.Error("ServerTimingEnabled() on nil = true, want false")
	}
}

func TestServerTiming(t *testing.T) {
	header := &servertiming.Header{}
	ctx := servertiming.NewContext(context.Background(), header)

	cfg := NewConfig(WithServerTiming())
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	ctx, read := cfg.StartRead(ctx, "resource-set")
	read.End(ctx, 2, "", nil)

	if len(header.Metrics) != 1 {
		t.Fatalf("len(Metrics) = %d, want 1", len(header.Metrics))
	}
	if got := header.Metrics[0].Name; got != "odata-read-resource-set" {
		t.Errorf("metric name = %q, want odata-read-resource-set", got)
	}
}

func TestServerTimingWithoutHeader(t *testing.T) {
	m := StartServerTimingWithDesc(context.Background(), "decode", "payload decode")
	m.Stop()
	var nilMetric *ServerTimingMetric
	nilMetric.Stop()
}
