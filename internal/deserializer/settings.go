package deserializer

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/metadata"
	"github.com/nlstn/go-odata-reader/internal/spatial"
)

// PrimitiveTypeGuesser picks a type for a primitive value read without
// metadata. Returning nil falls back to the built-in rules.
type PrimitiveTypeGuesser func(raw any, payloadTypeName string) *edm.TypeReference

// ReadAsStreamFunc decides whether a property value is reported as a stream
// nested resource info instead of being materialized. owner is nil for
// properties of untyped resources.
type ReadAsStreamFunc func(propertyType *edm.TypeReference, property *edm.Property, propertyName string, owner *edm.StructuredType) bool

// SpatialReader reads GeoJSON values.
type SpatialReader interface {
	ReadSpatial(ctx context.Context, r jsonsource.Reader, kind edm.PrimitiveKind, insideObject bool, guard spatial.DepthGuard) (*spatial.Value, error)
}

// MetadataProvider answers the type questions of the deserializer.
type MetadataProvider interface {
	ResolveTypeName(expected *edm.TypeReference, typeName string) (edm.Type, edm.TypeKind, error)
	ComputeTargetType(req metadata.TargetRequest) (metadata.Target, error)
	FindProperty(t *edm.StructuredType, name string) *edm.Property
	IsOpen(t *edm.StructuredType) bool
	TermType(term string) *edm.TypeReference
}

// Settings configure a read. The zero value reads response payloads with
// the default nesting limit.
type Settings struct {
	MaxNestingDepth int
	// IEEE754Compatible requires Int64 and Decimal values as JSON strings.
	IEEE754Compatible bool
	// AllowUndeclaredProperties reads unknown properties of non-open types
	// as dynamic values instead of failing.
	AllowUndeclaredProperties bool
	// ReadUntypedAsString reads values without type information, other than
	// booleans, as raw JSON text.
	ReadUntypedAsString bool
	// ReadUntypedCollectionAsCollection reads untyped arrays of undeclared
	// properties as collection values rather than resource sets.
	ReadUntypedCollectionAsCollection bool
	// AllowTypeConflicts keeps declared types when the payload disagrees and
	// synthesizes named types for unknown payload type names.
	AllowTypeConflicts bool
	// ReadingRequest selects request semantics (odata.bind) over response semantics.
	ReadingRequest bool
	// EnableSimplifiedAnnotations accepts "@type" for "@odata.type" and so on.
	EnableSimplifiedAnnotations bool
	// Annotations filters custom annotations; nil includes all of them.
	Annotations *AnnotationFilter
	// BaseURI resolves relative links.
	BaseURI *url.URL

	PrimitiveTypeGuesser PrimitiveTypeGuesser
	ReadAsStream         ReadAsStreamFunc
	Spatial              SpatialReader

	Logger *slog.Logger
}

type filterPattern struct {
	prefix  string // namespace prefix including the dot, "" for "*"
	exact   string
	exclude bool
}

func (p filterPattern) specificity(name string) int {
	switch {
	case p.exact != "":
		if p.exact == name {
			return len(p.exact) + 2
		}
	case p.prefix == "":
		return 1
	case strings.HasPrefix(name, p.prefix):
		return len(p.prefix) + 1
	}
	return 0
}

// AnnotationFilter selects custom annotations with the syntax of the
// odata.include-annotations preference: a comma separated list of terms,
// "Namespace.*" wildcards and "*", each optionally prefixed with "-".
type AnnotationFilter struct {
	patterns []filterPattern
}

// ParseAnnotationFilter parses a filter. An empty string matches nothing.
func ParseAnnotationFilter(s string) *AnnotationFilter {
	f := &AnnotationFilter{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var p filterPattern
		if strings.HasPrefix(part, "-") {
			p.exclude = true
			part = part[1:]
		}
		switch {
		case part == "*":
		case strings.HasSuffix(part, ".*"):
			p.prefix = strings.TrimSuffix(part, "*")
		default:
			p.exact = part
		}
		f.patterns = append(f.patterns, p)
	}
	return f
}

// Matches reports whether the annotation should be kept. The most specific
// matching pattern decides; an exclusion wins a tie.
func (f *AnnotationFilter) Matches(annotationName string) bool {
	if f == nil {
		return true
	}
	best, include := 0, false
	for _, p := range f.patterns {
		s := p.specificity(annotationName)
		if s == 0 {
			continue
		}
		if s > best || (s == best && p.exclude) {
			best, include = s, !p.exclude
		}
	}
	return include
}
