// Package deserializer converts the node stream of a jsonsource.Reader into
// the value object model, guided by EDM types from a MetadataProvider.
//
// A Deserializer serves a single top-level read. The same code drives both
// blocking and suspending readers: every interaction with the token source
// takes the caller's context, and a suspending reader may wait there.
package deserializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/metadata"
	"github.com/nlstn/go-odata-reader/internal/spatial"
)

// Deserializer reads values from one token source.
type Deserializer struct {
	r       jsonsource.Reader
	md      MetadataProvider
	s       Settings
	guard   *recursionGuard
	log     *slog.Logger
	spatial SpatialReader
}

// New creates a deserializer reading from r.
func New(r jsonsource.Reader, md MetadataProvider, s Settings) *Deserializer {
	d := &Deserializer{
		r:       r,
		md:      md,
		s:       s,
		guard:   newRecursionGuard(s.MaxNestingDepth),
		log:     s.Logger,
		spatial: s.Spatial,
	}
	if d.md == nil {
		d.md = metadata.NewProvider(nil)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.spatial == nil {
		d.spatial = spatial.NewReader()
	}
	return d
}

// Depth returns the current nesting depth. It is zero between reads.
func (d *Deserializer) Depth() int { return d.guard.depth }

// PeakDepth returns the deepest nesting reached so far.
func (d *Deserializer) PeakDepth() int { return d.guard.peak }

func (d *Deserializer) read(ctx context.Context) error {
	return wrapSourceError(d.r.Read(ctx))
}

func (d *Deserializer) skip(ctx context.Context) error {
	return wrapSourceError(d.r.SkipValue(ctx))
}

func (d *Deserializer) propertyName() (string, error) {
	name, err := d.r.PropertyName()
	return name, wrapSourceError(err)
}

func (d *Deserializer) unexpectedNode(expected jsonsource.NodeKind) *Error {
	return newError(CodeUnexpectedNode, "expected %s, found %s", expected, d.r.NodeKind()).
		withTypes(expected.String(), d.r.NodeKind().String())
}

func (d *Deserializer) expectNode(kind jsonsource.NodeKind) error {
	if d.r.NodeKind() != kind {
		return d.unexpectedNode(kind)
	}
	return nil
}

// readString reads a string primitive value; what names the value in errors.
func (d *Deserializer) readString(ctx context.Context, what string) (string, error) {
	s, ok := d.r.Value().(string)
	if d.r.NodeKind() != jsonsource.PrimitiveValue || !ok {
		return "", newError(CodeInvalidAnnotationValue, "%s must be a string, found %s", what, d.describeNode()).
			withProperty(what)
	}
	return s, d.read(ctx)
}

// readURI reads a string value and resolves it against the base URI.
func (d *Deserializer) readURI(ctx context.Context, what string) (*url.URL, error) {
	s, err := d.readString(ctx, what)
	if err != nil {
		return nil, err
	}
	return d.resolveURI(s, what)
}

func (d *Deserializer) resolveURI(s, what string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, &Error{Code: CodeInvalidAnnotationValue, Property: what, Message: fmt.Sprintf("%s is not a valid URI", what), Err: err}
	}
	if !u.IsAbs() && d.s.BaseURI != nil {
		u = d.s.BaseURI.ResolveReference(u)
	}
	return u, nil
}

// readLong reads an integer given either as a JSON number or as a string.
func (d *Deserializer) readLong(ctx context.Context, what string) (int64, error) {
	var text string
	switch v := d.r.Value().(type) {
	case jsonsource.Number:
		text = string(v)
	case string:
		text = v
	default:
		return 0, newError(CodeInvalidAnnotationValue, "%s must be an integer, found %s", what, d.describeNode()).
			withProperty(what)
	}
	if d.r.NodeKind() != jsonsource.PrimitiveValue {
		return 0, newError(CodeInvalidAnnotationValue, "%s must be an integer, found %s", what, d.describeNode())
	}
	n, err := parseInt(text, 64)
	if err != nil {
		return 0, &Error{Code: CodeInvalidAnnotationValue, Property: what, Message: fmt.Sprintf("%s must be an integer", what), Err: err}
	}
	return n, d.read(ctx)
}

func (d *Deserializer) describeNode() string {
	if d.r.NodeKind() != jsonsource.PrimitiveValue {
		return d.r.NodeKind().String()
	}
	switch d.r.Value().(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	default:
		return "number"
	}
}

// computeTarget asks the metadata provider for the target type and maps its
// failures to coded errors.
func (d *Deserializer) computeTarget(expected *edm.TypeReference, payloadTypeName string, forResource bool, fallback func() edm.TypeKind, property string) (metadata.Target, error) {
	target, err := d.md.ComputeTargetType(metadata.TargetRequest{
		Expected:           expected,
		PayloadTypeName:    payloadTypeName,
		ForResource:        forResource,
		Fallback:           fallback,
		AllowTypeConflicts: d.s.AllowTypeConflicts,
	})
	if err != nil {
		return metadata.Target{}, mapResolveError(err, property)
	}
	return target, nil
}

func (d *Deserializer) resolveTypeName(expected *edm.TypeReference, typeName, property string) (edm.Type, error) {
	t, _, err := d.md.ResolveTypeName(expected, typeName)
	if err != nil {
		return nil, mapResolveError(err, property)
	}
	return t, nil
}

func mapResolveError(err error, property string) error {
	var re *metadata.ResolveError
	if !errors.As(err, &re) {
		var e *Error
		if errors.As(err, &e) {
			return e.withProperty(property)
		}
		return &Error{Code: CodeInternal, Property: property, Message: "type resolution failed", Err: err}
	}
	code := CodeIncompatibleType
	switch re.Reason {
	case metadata.ReasonEmptyTypeName:
		code = CodeInvalidTypeName
	case metadata.ReasonIncorrectTypeKind, metadata.ReasonEntityValueNotAllowed:
		code = CodeIncorrectTypeKind
	}
	e := &Error{Code: code, Property: property, Message: re.Error(), Err: err}
	if re.Reason == metadata.ReasonIncorrectTypeKind {
		return e.withTypes(re.ExpectedKind.String(), re.ActualKind.String())
	}
	return e.withTypes(re.ExpectedType, re.TypeName)
}
