package deserializer

import (
	"context"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

const (
	annContext          = "odata.context"
	annType             = "odata.type"
	annID               = "odata.id"
	annETag             = "odata.etag"
	annEditLink         = "odata.editLink"
	annReadLink         = "odata.readLink"
	annMediaEditLink    = "odata.mediaEditLink"
	annMediaReadLink    = "odata.mediaReadLink"
	annMediaContentType = "odata.mediaContentType"
	annMediaETag        = "odata.mediaEtag"
	annCount            = "odata.count"
	annNextLink         = "odata.nextLink"
	annDeltaLink        = "odata.deltaLink"
	annNavigationLink   = "odata.navigationLink"
	annAssociationLink  = "odata.associationLink"
	annBind             = "odata.bind"
	annRemoved          = "odata.removed"
	annDelta            = "odata.delta"
	annNull             = "odata.null"

	odataPrefix = "odata."
)

// reservedAnnotations are the odata.* annotations with defined meaning.
// Other names in the odata namespace are kept as plain instance annotations.
var reservedAnnotations = map[string]bool{
	annContext: true, annType: true, annID: true, annETag: true,
	annEditLink: true, annReadLink: true,
	annMediaEditLink: true, annMediaReadLink: true, annMediaContentType: true, annMediaETag: true,
	annCount: true, annNextLink: true, annDeltaLink: true,
	annNavigationLink: true, annAssociationLink: true, annBind: true,
	annRemoved: true, annDelta: true, annNull: true,
}

func isODataAnnotation(name string) bool {
	return strings.HasPrefix(name, odataPrefix)
}

// parseResult classifies what parseProperty found.
type parseResult int

const (
	resultEndOfObject parseResult = iota
	// the property name was consumed; the reader is on its value
	resultPropertyWithValue
	// annotations were read for a property whose value does not follow
	resultPropertyWithoutValue
	// the reader is on the annotation's Property node
	resultODataInstanceAnnotation
	resultCustomInstanceAnnotation
	// the reader is on a "#Namespace.Operation" Property node
	resultMetadataReference
)

type nameKind int

const (
	nameProperty nameKind = iota
	namePropertyAnnotation
	nameInstanceAnnotation
	nameMetadataReference
)

// annotationReader reads the value of a reserved property annotation. The
// reader is on the value and must be left after it.
type annotationReader func(ctx context.Context, propertyName, annotationName string) (any, error)

// classifyName splits a JSON member name. "p@a" annotates property p, "@a"
// annotates the enclosing object, and "#NS.Op" is a metadata reference.
func (d *Deserializer) classifyName(raw string) (kind nameKind, property, annotation string) {
	switch {
	case strings.HasPrefix(raw, "#"):
		return nameMetadataReference, raw, ""
	case strings.HasPrefix(raw, "@"):
		return nameInstanceAnnotation, "", d.normalizeAnnotationName(raw[1:])
	}
	if i := strings.IndexByte(raw, '@'); i > 0 {
		return namePropertyAnnotation, raw[:i], d.normalizeAnnotationName(raw[i+1:])
	}
	return nameProperty, raw, ""
}

func (d *Deserializer) normalizeAnnotationName(name string) string {
	if d.s.EnableSimplifiedAnnotations && !strings.Contains(name, ".") {
		return odataPrefix + name
	}
	return name
}

// parseProperty reads property annotations until it reaches something the
// caller must handle. Annotations for one property are recorded in c; if
// they are not followed by that property's value the result is
// resultPropertyWithoutValue.
func (d *Deserializer) parseProperty(ctx context.Context, c *Collector, readAnnotation annotationReader) (parseResult, string, error) {
	annotated := ""
	for d.r.NodeKind() == jsonsource.Property {
		raw, err := d.propertyName()
		if err != nil {
			return 0, "", err
		}
		kind, property, annotation := d.classifyName(raw)
		if annotated != "" && !(kind == namePropertyAnnotation && property == annotated) &&
			!(kind == nameProperty && property == annotated) {
			return resultPropertyWithoutValue, annotated, nil
		}
		switch kind {
		case namePropertyAnnotation:
			annotated = property
			if err := d.read(ctx); err != nil {
				return 0, "", err
			}
			if err := d.readPropertyAnnotation(ctx, c, property, annotation, readAnnotation); err != nil {
				return 0, "", err
			}
		case nameInstanceAnnotation:
			if isODataAnnotation(annotation) {
				return resultODataInstanceAnnotation, annotation, nil
			}
			return resultCustomInstanceAnnotation, annotation, nil
		case nameMetadataReference:
			return resultMetadataReference, raw, nil
		default:
			if err := d.read(ctx); err != nil {
				return 0, "", err
			}
			return resultPropertyWithValue, property, nil
		}
	}
	if annotated != "" {
		return resultPropertyWithoutValue, annotated, nil
	}
	if err := d.expectNode(jsonsource.EndObject); err != nil {
		return 0, "", err
	}
	return resultEndOfObject, "", nil
}

// readPropertyAnnotation reads "p@a". "p@NS.term@odata.type" names the type
// of a later "p@NS.term" and is recorded under the scope "p@NS.term".
func (d *Deserializer) readPropertyAnnotation(ctx context.Context, c *Collector, property, annotation string, readAnnotation annotationReader) error {
	if !isODataAnnotation(annotation) {
		scope := property + "@" + annotation
		if term, nested, ok := strings.Cut(annotation, "@"); ok {
			if d.normalizeAnnotationName(nested) != annType {
				return d.skip(ctx)
			}
			s, err := d.readString(ctx, annType)
			if err != nil {
				return withPropertyName(err, property)
			}
			return c.RecordAnnotation(property+"@"+term, annType, edm.NormalizeTypeName(s))
		}
		if !d.s.Annotations.Matches(annotation) {
			d.log.Debug("skipping filtered annotation", "property", property, "annotation", annotation)
			return d.skip(ctx)
		}
		payloadTypeName := ""
		if v, ok := c.Annotation(scope, annType); ok {
			payloadTypeName, _ = v.(string)
		}
		v, err := d.readCustomAnnotationValue(ctx, annotation, payloadTypeName)
		if err != nil {
			return withPropertyName(err, property)
		}
		return c.RecordCustomAnnotation(property, annotation, v)
	}
	if !reservedAnnotations[annotation] {
		v, err := d.readRawValue(ctx)
		if err != nil {
			return err
		}
		return c.RecordCustomAnnotation(property, annotation, v)
	}
	v, err := readAnnotation(ctx, property, annotation)
	if err != nil {
		return withPropertyName(err, property)
	}
	return c.RecordAnnotation(property, annotation, v)
}

// processProperty runs parseProperty and marks what it found in the
// collector before handing it to handle.
func (d *Deserializer) processProperty(ctx context.Context, c *Collector, readAnnotation annotationReader, handle func(parseResult, string) error) error {
	result, name, err := d.parseProperty(ctx, c, readAnnotation)
	if err != nil {
		return err
	}
	switch result {
	case resultEndOfObject, resultCustomInstanceAnnotation:
	case resultODataInstanceAnnotation:
		if err := c.MarkAnnotationProcessed(name); err != nil {
			return err
		}
	default:
		c.MarkProcessed(name)
	}
	return handle(result, name)
}

// readPropertyAnnotationValue decodes the reserved annotations a property
// may carry inside a resource.
func (d *Deserializer) readPropertyAnnotationValue(ctx context.Context, property, annotation string) (any, error) {
	switch annotation {
	case annType:
		s, err := d.readString(ctx, annotation)
		if err != nil {
			return nil, err
		}
		return edm.NormalizeTypeName(s), nil
	case annNavigationLink, annAssociationLink, annNextLink, annMediaEditLink, annMediaReadLink, annContext:
		return d.readURI(ctx, annotation)
	case annCount:
		return d.readLong(ctx, annotation)
	case annMediaETag, annMediaContentType:
		return d.readString(ctx, annotation)
	case annBind:
		return d.readBind(ctx, property)
	case annDelta:
		return nil, newError(CodeDeltaNotSupported, "delta payloads are not supported").withProperty(property)
	}
	return nil, newError(CodeUnexpectedPropertyAnnotation, "unexpected annotation %q on property %q", annotation, property).
		withProperty(property)
}

// readValueAnnotation serves property annotations inside values, where only
// odata.type is meaningful.
func (d *Deserializer) readValueAnnotation(ctx context.Context, property, annotation string) (any, error) {
	if annotation == annType {
		return d.readPropertyAnnotationValue(ctx, property, annotation)
	}
	return nil, newError(CodeUnexpectedPropertyAnnotation, "unexpected annotation %q on property %q", annotation, property).
		withProperty(property)
}

// readBind reads odata.bind as a single URL string or a non-empty array of them.
func (d *Deserializer) readBind(ctx context.Context, property string) (any, error) {
	switch d.r.NodeKind() {
	case jsonsource.PrimitiveValue:
		if _, ok := d.r.Value().(string); ok {
			return d.readString(ctx, annBind)
		}
	case jsonsource.StartArray:
		if err := d.read(ctx); err != nil {
			return nil, err
		}
		links := []string{}
		for d.r.NodeKind() != jsonsource.EndArray {
			s, err := d.readString(ctx, annBind)
			if err != nil {
				return nil, err
			}
			links = append(links, s)
		}
		if err := d.read(ctx); err != nil {
			return nil, err
		}
		if len(links) == 0 {
			return nil, newError(CodeEmptyBindArray, "odata.bind for %q is an empty array", property).withProperty(property)
		}
		return links, nil
	}
	return nil, newError(CodeInvalidBind, "odata.bind for %q must be a string or an array of strings", property).
		withProperty(property)
}

// readCustomAnnotationValue reads a custom annotation. A declared term
// supplies the expected type; otherwise the value is read dynamically.
func (d *Deserializer) readCustomAnnotationValue(ctx context.Context, term, payloadTypeName string) (any, error) {
	rc := readContext{propertyName: "@" + term}
	expected := d.md.TermType(term)
	if expected == nil {
		rc.dynamic = true
		return d.readDynamicValue(ctx, payloadTypeName, rc)
	}
	return d.readNonEntityValue(ctx, payloadTypeName, expected, nil, nil, rc)
}

// readCustomInstanceAnnotation reads "@NS.term" on the reader's Property
// node into dst. "@NS.term@odata.type" names the type of a later
// "@NS.term" and is recorded under the scope "@NS.term".
func (d *Deserializer) readCustomInstanceAnnotation(ctx context.Context, c *Collector, name string, dst *[]*value.InstanceAnnotation) error {
	if err := d.read(ctx); err != nil {
		return err
	}
	if term, nested, ok := strings.Cut(name, "@"); ok {
		if d.normalizeAnnotationName(nested) != annType {
			return d.skip(ctx)
		}
		s, err := d.readString(ctx, annType)
		if err != nil {
			return err
		}
		return c.RecordAnnotation("@"+term, annType, edm.NormalizeTypeName(s))
	}
	if !d.s.Annotations.Matches(name) {
		d.log.Debug("skipping filtered annotation", "annotation", name)
		return d.skip(ctx)
	}
	payloadTypeName := ""
	if v, ok := c.Annotation("@"+name, annType); ok {
		payloadTypeName, _ = v.(string)
	}
	v, err := d.readCustomAnnotationValue(ctx, name, payloadTypeName)
	if err != nil {
		return err
	}
	if err := c.RecordCustomAnnotation(ScopeName, name, v); err != nil {
		return err
	}
	*dst = append(*dst, &value.InstanceAnnotation{Name: name, Value: v})
	return nil
}

// readUnknownInstanceAnnotation keeps an unreserved odata.* annotation as raw JSON.
func (d *Deserializer) readUnknownInstanceAnnotation(ctx context.Context, name string, dst *[]*value.InstanceAnnotation) error {
	if err := d.read(ctx); err != nil {
		return err
	}
	v, err := d.readRawValue(ctx)
	if err != nil {
		return err
	}
	*dst = append(*dst, &value.InstanceAnnotation{Name: name, Value: v})
	return nil
}

// dataPropertyTypeName returns the odata.type recorded for a data property
// and rejects reserved annotations that do not apply to one.
func (d *Deserializer) dataPropertyTypeName(c *Collector, property string) (string, error) {
	typeName := ""
	for _, a := range c.AnnotationsFor(property) {
		if a.Name != annType {
			return "", newError(CodeUnexpectedPropertyAnnotation, "unexpected annotation %q on property %q", a.Name, property).
				withProperty(property)
		}
		typeName, _ = a.Value.(string)
	}
	return typeName, nil
}

func withPropertyName(err error, property string) error {
	if e, ok := err.(*Error); ok {
		return e.withProperty(property)
	}
	return err
}
