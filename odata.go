// Package odata reads OData JSON payloads into a typed value tree.
//
// A Reader combines an EDM model with read settings. The model is built by
// registering Go structs, by loading schema documents (YAML, JSONC or CBOR),
// or from a schema registry. Each top-level payload kind has a read method:
//
//	reader, err := odata.NewReader(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := reader.RegisterEntity(&Product{}); err != nil {
//	    log.Fatal(err)
//	}
//	productType, err := reader.TypeRef("ODataReader.Product", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resource, err := reader.ReadResource(ctx, r.Body, productType)
//
// Every read method has an Async form that runs the read on its own
// goroutine over a suspending token source and returns a Future.
//
// # Errors
//
// Failed reads return an *Error carrying a machine-checkable Code. Use
// HasCode and CategoryOf to inspect them; errors.As works as usual.
package odata

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/nlstn/go-odata-reader/internal/deserializer"
	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/metadata"
	"github.com/nlstn/go-odata-reader/internal/observability"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNamespace is used for registered Go types when no explicit namespace is configured.
const DefaultNamespace = "ODataReader"

const (
	// DefaultMaxNestingDepth is the default limit on nested objects and arrays in one payload.
	// It bounds the work a hostile payload can cause.
	DefaultMaxNestingDepth = 100

	// DefaultIncludeAnnotations keeps every custom instance annotation.
	DefaultIncludeAnnotations = "*"
)

// ReaderConfig controls how payloads are read. The zero value reads
// response payloads with the defaults.
type ReaderConfig struct {
	// Namespace qualifies Go types registered with RegisterEntity.
	// Default: DefaultNamespace.
	Namespace string `yaml:"namespace"`

	// MaxNestingDepth limits nested objects and arrays.
	// Default: 100. If set to 0 or a negative value, DefaultMaxNestingDepth is used.
	MaxNestingDepth int `yaml:"maxNestingDepth"`

	// IEEE754Compatible requires Edm.Int64 and Edm.Decimal values as JSON strings.
	IEEE754Compatible bool `yaml:"ieee754Compatible"`

	// AllowUndeclaredProperties reads unknown properties of closed types as
	// dynamic values. By default they fail the read.
	AllowUndeclaredProperties bool `yaml:"allowUndeclaredProperties"`

	// ReadUntypedAsString reads values without type information as raw JSON text.
	ReadUntypedAsString bool `yaml:"readUntypedAsString"`

	// ReadUntypedCollectionAsCollection reads untyped arrays as collections
	// rather than resource sets.
	ReadUntypedCollectionAsCollection bool `yaml:"readUntypedCollectionAsCollection"`

	// AllowTypeConflicts keeps declared types when the payload names another
	// type, and synthesizes untyped named types for unknown payload names.
	AllowTypeConflicts bool `yaml:"allowTypeConflicts"`

	// ReadingRequest reads request payloads (odata.bind) instead of responses.
	ReadingRequest bool `yaml:"readingRequest"`

	// EnableSimplifiedAnnotations accepts the OData 4.01 forms "@type", "@id"
	// and so on next to the "@odata." prefixed ones.
	EnableSimplifiedAnnotations bool `yaml:"enableSimplifiedAnnotations"`

	// IncludeAnnotations selects custom annotations in the syntax of the
	// odata.include-annotations preference, e.g. "*,-Core.*".
	// Default: "*". Use "-*" to drop all custom annotations.
	IncludeAnnotations string `yaml:"includeAnnotations"`

	// BaseURI resolves relative links in the payload. It must be absolute.
	BaseURI string `yaml:"baseURI"`

	// Reordering reads odata.type and other control information ahead of
	// the properties of each object, regardless of their position.
	Reordering bool `yaml:"reordering"`
}

func (cfg ReaderConfig) normalize() (ReaderConfig, *url.URL, error) {
	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxNestingDepth <= 0 {
		cfg.MaxNestingDepth = DefaultMaxNestingDepth
	}
	if cfg.IncludeAnnotations == "" {
		cfg.IncludeAnnotations = DefaultIncludeAnnotations
	}
	var base *url.URL
	if cfg.BaseURI != "" {
		u, err := url.Parse(cfg.BaseURI)
		if err != nil {
			return cfg, nil, fmt.Errorf("odata: invalid base URI: %w", err)
		}
		if !u.IsAbs() {
			return cfg, nil, fmt.Errorf("odata: base URI %q is not absolute", cfg.BaseURI)
		}
		base = u
	}
	return cfg, base, nil
}

// Reader reads OData JSON payloads against a model. It is safe for
// concurrent use; model changes wait for reads in progress.
type Reader struct {
	mu sync.RWMutex

	cfg         ReaderConfig
	baseURI     *url.URL
	annotations *deserializer.AnnotationFilter

	model    *edm.Model
	provider *metadata.Provider
	analyzer *metadata.Analyzer

	guesser      PrimitiveTypeGuesser
	readAsStream ReadAsStreamFunc
	spatial      SpatialReader

	logger        *slog.Logger
	observability *observability.Config
}

// NewReader creates a reader over model with the default configuration.
// A nil model starts empty.
func NewReader(model *Model) (*Reader, error) {
	return NewReaderWithConfig(model, ReaderConfig{})
}

// NewReaderWithConfig creates a reader over model with cfg.
func NewReaderWithConfig(model *Model, cfg ReaderConfig) (*Reader, error) {
	cfg, base, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if model == nil {
		model = edm.NewModel()
	}
	return &Reader{
		cfg:         cfg,
		baseURI:     base,
		annotations: deserializer.ParseAnnotationFilter(cfg.IncludeAnnotations),
		model:       model,
		provider:    metadata.NewProvider(model),
		analyzer:    metadata.NewAnalyzer(cfg.Namespace, model),
		logger:      slog.Default(),
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (r *Reader) Config() ReaderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Model returns the reader's model. Change it only through the reader, or
// call Invalidate afterwards.
func (r *Reader) Model() *Model {
	return r.model
}

// Invalidate drops cached type lookups after the model was changed directly.
func (r *Reader) Invalidate() {
	r.provider.Invalidate()
}

// SetLogger sets a custom logger for the reader.
// If logger is nil, slog.Default() is used.
//
// # Example
//
//	if err := reader.SetLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil))); err != nil {
//	    log.Fatal(err)
//	}
func (r *Reader) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
	return nil
}

// SetNamespace changes the namespace of Go types registered from now on.
func (r *Reader) SetNamespace(namespace string) error {
	trimmed := strings.TrimSpace(namespace)
	if trimmed == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if trimmed == r.cfg.Namespace {
		return nil
	}
	r.cfg.Namespace = trimmed
	r.analyzer = metadata.NewAnalyzer(trimmed, r.model)
	r.logger.Info("Namespace changed", "namespace", trimmed)
	return nil
}

// SetMaxNestingDepth changes the nesting limit. Values below one restore the default.
func (r *Reader) SetMaxNestingDepth(depth int) error {
	if depth <= 0 {
		depth = DefaultMaxNestingDepth
	}
	r.mu.Lock()
	r.cfg.MaxNestingDepth = depth
	r.logger.Info("Max nesting depth changed", "depth", depth)
	r.mu.Unlock()
	return nil
}

// SetIncludeAnnotations replaces the custom annotation filter.
func (r *Reader) SetIncludeAnnotations(filter string) error {
	if filter == "" {
		filter = DefaultIncludeAnnotations
	}
	r.mu.Lock()
	r.cfg.IncludeAnnotations = filter
	r.annotations = deserializer.ParseAnnotationFilter(filter)
	r.mu.Unlock()
	return nil
}

// ObservabilityConfig configures observability features (tracing, metrics) for the reader.
// All providers are optional; when nil, the corresponding feature is disabled with zero overhead.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer for distributed tracing.
	// If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter for metrics collection.
	// If nil, metrics collection is disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "odata-reader" if not specified.
	ServiceName string

	// ServiceVersion is reported in telemetry attributes.
	ServiceVersion string

	// EnableServerTiming adds a Server-Timing metric per read when the
	// context carries a Server-Timing header (see the devserver command).
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry-based observability for the reader.
//
// When observability is configured every top-level read:
//   - runs in a span named "odata.read.<operation>"
//   - is counted, timed and has its deepest nesting recorded
//   - counts failures by error code
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	defer tp.Shutdown(ctx)
//
//	reader.SetObservability(odata.ObservabilityConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "orders-api",
//	    ServiceVersion: "1.0.0",
//	})
func (r *Reader) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	opts = append(opts, observability.WithLogger(r.logger))

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	r.observability = obsCfg

	r.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"server_timing_enabled", cfg.EnableServerTiming,
		"service_name", cfg.ServiceName,
	)
	return nil
}

// Observability returns the current observability configuration.
// Returns nil if observability is not configured.
func (r *Reader) Observability() *observability.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observability
}

// ServerTimingMetric represents a Server-Timing metric that tracks the duration
// of an operation for the Server-Timing HTTP response header.
// Use StartServerTiming or StartServerTimingWithDesc to create metrics.
type ServerTimingMetric = observability.ServerTimingMetric

// StartServerTiming starts a Server-Timing metric with the given name.
// If the context doesn't carry timing information, the returned metric is a
// no-op that is safe to Stop.
//
// Example:
//
//	func handle(ctx context.Context) {
//	    metric := odata.StartServerTiming(ctx, "schema-load")
//	    defer metric.Stop()
//	    // load the schema
//	}
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return observability.StartServerTiming(ctx, name)
}

// StartServerTimingWithDesc starts a Server-Timing metric with a name and description.
// The description provides additional context in browser developer tools.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	return observability.StartServerTimingWithDesc(ctx, name, description)
}

// SetPrimitiveTypeGuesser installs a hook that picks types for primitive
// values read without metadata. nil restores the built-in rules.
func (r *Reader) SetPrimitiveTypeGuesser(guesser PrimitiveTypeGuesser) error {
	r.mu.Lock()
	r.guesser = guesser
	r.mu.Unlock()
	return nil
}

// SetReadAsStream installs a predicate selecting properties that are
// reported as stream nested infos instead of being read. nil disables it.
func (r *Reader) SetReadAsStream(fn ReadAsStreamFunc) error {
	r.mu.Lock()
	r.readAsStream = fn
	r.mu.Unlock()
	return nil
}

// SetTypeResolver installs a resolver consulted before the model for
// payload type names. nil removes it.
func (r *Reader) SetTypeResolver(resolver TypeResolver) error {
	r.provider.SetTypeResolver(metadata.CustomTypeResolver(resolver))
	return nil
}

// RegisterEntity adds the entity type described by a Go struct, and every
// type it refers to, to the model.
func (r *Reader) RegisterEntity(entity any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.analyzer.AnalyzeEntity(entity)
	if err != nil {
		return fmt.Errorf("failed to analyze entity: %w", err)
	}
	r.provider.Invalidate()
	r.logger.Debug("Registered entity", "type", st.FullName())
	return nil
}

// RegisterComplexType adds the complex type described by a Go struct to the model.
func (r *Reader) RegisterComplexType(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.analyzer.AnalyzeComplex(v)
	if err != nil {
		return fmt.Errorf("failed to analyze complex type: %w", err)
	}
	r.provider.Invalidate()
	r.logger.Debug("Registered complex type", "type", st.FullName())
	return nil
}

// TypeRef returns a reference to the named model or primitive type, for
// use as the expected type of a read. Collection(...) names are accepted.
func (r *Reader) TypeRef(name string, nullable bool) (*TypeReference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.model.FindType(edm.NormalizeTypeName(name))
	if t == nil {
		return nil, fmt.Errorf("odata: unknown type %q", name)
	}
	return edm.NewTypeReference(t, nullable), nil
}
