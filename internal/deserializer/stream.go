package deserializer

import (
	"context"
	"mime"
	"net/url"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// streamReference builds a stream reference from the media annotations
// recorded for a property.
func streamReference(c *Collector, name string) (*value.StreamReferenceValue, error) {
	sv := &value.StreamReferenceValue{}
	for _, a := range c.AnnotationsFor(name) {
		switch a.Name {
		case annMediaEditLink:
			sv.EditLink = a.Value.(*url.URL)
		case annMediaReadLink:
			sv.ReadLink = a.Value.(*url.URL)
		case annMediaContentType:
			sv.ContentType = a.Value.(string)
		case annMediaETag:
			sv.ETag = a.Value.(string)
		case annType:
		default:
			return nil, newError(CodeUnexpectedPropertyAnnotation, "annotation %q is not allowed on stream property %q", a.Name, name)
		}
	}
	return sv, nil
}

// addStreamProperty adds a stream property described only by annotations.
func (d *Deserializer) addStreamProperty(state *resourceState, name string) error {
	sv, err := streamReference(state.collector, name)
	if err != nil {
		return err
	}
	return d.addProperty(state, name, sv)
}

// readStreamPropertyValue reads a stream property carrying inline content.
// JSON content is kept as JSON text, text/* content as the string's bytes,
// anything else is base64 decoded.
func (d *Deserializer) readStreamPropertyValue(ctx context.Context, state *resourceState, name string) (*value.NestedResourceInfo, error) {
	sv, err := streamReference(state.collector, name)
	if err != nil {
		return nil, err
	}
	if err := state.collector.CheckDuplicate(name); err != nil {
		return nil, err
	}
	info := &value.NestedResourceInfo{Name: name, Kind: value.NestedStream, Stream: sv}

	switch {
	case d.r.NodeKind() == jsonsource.PrimitiveValue && d.r.Value() == nil:
		return info, d.read(ctx)
	case isJSONContentType(sv.ContentType):
		raw, err := d.readRawValue(ctx)
		if err != nil {
			return nil, err
		}
		sv.Content = []byte(raw.RawValue)
		return info, nil
	}
	s, ok := d.r.Value().(string)
	if d.r.NodeKind() != jsonsource.PrimitiveValue || !ok {
		return nil, newError(CodePrimitiveExpected, "inline content of stream property %q must be a string, found %s", name, d.describeNode())
	}
	if strings.HasPrefix(sv.ContentType, "text/") {
		sv.Content = []byte(s)
	} else if sv.Content, err = decodeBase64(s); err != nil {
		return nil, &Error{Code: CodeInvalidPrimitiveValue, Message: "stream content is not valid base64", Expected: "Edm.Stream", Err: err}
	}
	return info, d.read(ctx)
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// shouldReadAsStream consults Settings.ReadAsStream for primitive and
// untyped values and collections of them.
func (d *Deserializer) shouldReadAsStream(t *edm.TypeReference, prop *edm.Property, name string, owner *edm.StructuredType) bool {
	if d.s.ReadAsStream == nil {
		return false
	}
	item := t
	if t.IsCollection() {
		item = t.ElementType()
	}
	if item.Primitive() == nil && !isGenericUntyped(item) {
		return false
	}
	if item.IsSpatial() {
		return false
	}
	if owner != nil && owner.IsUntyped() {
		owner = nil
	}
	return d.s.ReadAsStream(t, prop, name, owner)
}

// readAsStream reports a value as stream content instead of materializing it.
func (d *Deserializer) readAsStream(ctx context.Context, c *Collector, name string, t *edm.TypeReference) (*value.NestedResourceInfo, error) {
	if err := c.CheckDuplicate(name); err != nil {
		return nil, err
	}
	if !t.IsCollection() {
		sv, err := d.readStreamItem(ctx, t)
		if err != nil {
			return nil, err
		}
		return &value.NestedResourceInfo{Name: name, Kind: value.NestedStream, Stream: sv}, nil
	}

	if err := d.expectNode(jsonsource.StartArray); err != nil {
		return nil, err
	}
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	info := &value.NestedResourceInfo{Name: name, IsCollection: true, Kind: value.NestedStreamCollection}
	for d.r.NodeKind() != jsonsource.EndArray {
		sv, err := d.readStreamItem(ctx, t.ElementType())
		if err != nil {
			return nil, err
		}
		info.Streams = append(info.Streams, sv)
	}
	return info, d.read(ctx)
}

func (d *Deserializer) readStreamItem(ctx context.Context, t *edm.TypeReference) (*value.StreamReferenceValue, error) {
	sv := &value.StreamReferenceValue{}
	if d.r.NodeKind() != jsonsource.PrimitiveValue {
		raw, err := d.readRawValue(ctx)
		if err != nil {
			return nil, err
		}
		sv.Content = []byte(raw.RawValue)
		sv.ContentType = "application/json"
		return sv, nil
	}
	switch v := d.r.Value().(type) {
	case nil:
	case string:
		if t.IsPrimitive(edm.PrimitiveBinary) {
			b, err := decodeBase64(v)
			if err != nil {
				return nil, &Error{Code: CodeInvalidPrimitiveValue, Message: "binary content is not valid base64", Expected: "Edm.Binary", Err: err}
			}
			sv.Content = b
			sv.ContentType = "application/octet-stream"
		} else {
			sv.Content = []byte(v)
			sv.ContentType = "text/plain"
		}
	default:
		var buf strings.Builder
		switch v := v.(type) {
		case bool:
			if v {
				buf.WriteString("true")
			} else {
				buf.WriteString("false")
			}
		case jsonsource.Number:
			buf.WriteString(string(v))
		}
		sv.Content = []byte(buf.String())
		sv.ContentType = "text/plain"
	}
	return sv, d.read(ctx)
}
