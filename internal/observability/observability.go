// Package observability provides OpenTelemetry tracing and metrics for reads.
// A Config without providers uses no-op implementations, so instrumented
// code never has to check whether telemetry is enabled.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName identifies the reader in telemetry when none is configured.
	DefaultServiceName = "odata-reader"

	instrumentationName = "github.com/nlstn/go-odata-reader"
)

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.meterProvider = mp }
}

// WithServiceName sets the service name reported on spans.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the service version reported on spans.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithLogger sets the logger used for telemetry setup messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithServerTiming enables Server-Timing metrics for reads served over HTTP.
func WithServerTiming() Option {
	return func(c *Config) { c.serverTiming = true }
}

// Config holds the telemetry providers and the instruments created from them.
type Config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	serviceVersion string
	logger         *slog.Logger
	serverTiming   bool

	tracer   trace.Tracer
	reads    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	depth    metric.Int64Histogram
}

// NewConfig creates a Config. Call Initialize before use.
func NewConfig(opts ...Option) *Config {
	c := &Config{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = tracenoop.NewTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = metricnoop.NewMeterProvider()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize creates the tracer and metric instruments.
func (c *Config) Initialize() error {
	c.tracer = c.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(c.serviceVersion))
	meter := c.meterProvider.Meter(instrumentationName)

	var err error
	if c.reads, err = meter.Int64Counter("odata.reader.reads",
		metric.WithDescription("Number of top-level reads"),
		metric.WithUnit("{read}")); err != nil {
		return fmt.Errorf("failed to create reads counter: %w", err)
	}
	if c.failures, err = meter.Int64Counter("odata.reader.errors",
		metric.WithDescription("Number of failed reads by error code"),
		metric.WithUnit("{error}")); err != nil {
		return fmt.Errorf("failed to create errors counter: %w", err)
	}
	if c.duration, err = meter.Float64Histogram("odata.reader.duration",
		metric.WithDescription("Duration of top-level reads"),
		metric.WithUnit("ms")); err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if c.depth, err = meter.Int64Histogram("odata.reader.depth",
		metric.WithDescription("Deepest nesting reached by a read")); err != nil {
		return fmt.Errorf("failed to create depth histogram: %w", err)
	}
	c.logger.Debug("Observability initialized", "service_name", c.serviceName)
	return nil
}

// ServerTimingEnabled reports whether Server-Timing metrics were requested.
func (c *Config) ServerTimingEnabled() bool {
	return c != nil && c.serverTiming
}

// Read tracks one top-level read from start to End.
type Read struct {
	cfg       *Config
	operation string
	span      trace.Span
	start     time.Time
	timing    *ServerTimingMetric
}

// StartRead opens a span for a read of the given operation ("property",
// "resource", ...). A nil Config returns a Read that records nothing.
func (c *Config) StartRead(ctx context.Context, operation string) (context.Context, *Read) {
	if c == nil || c.tracer == nil {
		return ctx, &Read{operation: operation}
	}
	ctx, span := c.tracer.Start(ctx, "odata.read."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("odata.read.operation", operation),
			attribute.String("service.name", c.serviceName),
		))
	r := &Read{cfg: c, operation: operation, span: span, start: time.Now()}
	if c.serverTiming {
		r.timing = StartServerTiming(ctx, "odata-read-"+operation)
	}
	return ctx, r
}

// End closes the read. code is the error code of a failed read, or "" on success.
func (r *Read) End(ctx context.Context, peakDepth int, code string, err error) {
	if r.cfg == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("odata.read.operation", r.operation))
	r.cfg.reads.Add(ctx, 1, attrs)
	r.cfg.duration.Record(ctx, float64(time.Since(r.start).Microseconds())/1000, attrs)
	r.cfg.depth.Record(ctx, int64(peakDepth), attrs)
	r.span.SetAttributes(attribute.Int("odata.read.depth", peakDepth))
	if err != nil {
		r.cfg.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("odata.read.operation", r.operation),
			attribute.String("odata.error.code", code),
		))
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.span.SetStatus(codes.Ok, "")
	}
	r.timing.Stop()
	r.span.End()
}
