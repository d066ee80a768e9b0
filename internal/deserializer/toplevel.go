package deserializer

import (
	"context"
	"net/url"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// valuePropertyName holds the value of top-level properties and collections.
const valuePropertyName = "value"

// readPayloadStart enters the top-level object and reads a leading
// odata.context.
func (d *Deserializer) readPayloadStart(ctx context.Context) (*url.URL, error) {
	if err := d.guard.assertZero("entering"); err != nil {
		return nil, err
	}
	if d.r.NodeKind() == jsonsource.None {
		if err := d.read(ctx); err != nil {
			return nil, err
		}
	}
	if d.r.NodeKind() != jsonsource.StartObject {
		return nil, newError(CodeObjectExpected, "the payload must be a JSON object, found %s", d.describeNode())
	}
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	if d.r.NodeKind() != jsonsource.Property {
		return nil, nil
	}
	raw, err := d.propertyName()
	if err != nil {
		return nil, err
	}
	if kind, _, annotation := d.classifyName(raw); kind != nameInstanceAnnotation || annotation != annContext {
		return nil, nil
	}
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	return d.readURI(ctx, annContext)
}

// readPayloadEnd consumes the top-level EndObject and checks that nothing follows.
func (d *Deserializer) readPayloadEnd(ctx context.Context) error {
	if err := d.expectNode(jsonsource.EndObject); err != nil {
		return err
	}
	return d.finishPayload(ctx)
}

func (d *Deserializer) finishPayload(ctx context.Context) error {
	if d.r.NodeKind() == jsonsource.EndObject {
		if err := d.read(ctx); err != nil {
			return err
		}
	}
	if d.r.NodeKind() != jsonsource.EndOfInput {
		return newError(CodeUnexpectedNode, "unexpected %s after the payload", d.r.NodeKind())
	}
	return d.guard.assertZero("leaving")
}

// propertyNameFromContext returns the last path segment of a context URL
// fragment, e.g. "Name" for "$metadata#People('a')/Name".
func propertyNameFromContext(u *url.URL) string {
	if u == nil {
		return ""
	}
	i := strings.LastIndexByte(u.Fragment, '/')
	if i < 0 {
		return ""
	}
	return u.Fragment[i+1:]
}

// ReadProperty reads a payload holding a single property value: either
// {"value": ...} for primitive, enum and collection values, or the object
// itself for structured values.
func (d *Deserializer) ReadProperty(ctx context.Context, expected *edm.TypeReference) (*value.Property, error) {
	contextURL, err := d.readPayloadStart(ctx)
	if err != nil {
		return nil, err
	}
	prop := &value.Property{Name: propertyNameFromContext(contextURL), ContextURL: contextURL}

	if found, err := d.tryReadNullMarker(ctx, expected); err != nil || found {
		if err != nil {
			return nil, err
		}
		return prop, d.readPayloadEnd(ctx)
	}

	c := NewCollector()
	payloadTypeName, found, err := d.tryReadTypeAnnotation(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		if err := c.MarkAnnotationProcessed(annType); err != nil {
			return nil, err
		}
	}

	structured, err := d.isStructuredProperty(ctx, expected, payloadTypeName)
	if err != nil {
		return nil, err
	}
	if structured {
		rc := readContext{propertyName: prop.Name, insideResource: true, validateNull: true}
		prop.Value, err = d.readNonEntityValue(ctx, payloadTypeName, expected, nil, c, rc)
		if err != nil {
			return nil, err
		}
		return prop, d.finishPayload(ctx)
	}

	state := valueNotFound
	for d.r.NodeKind() != jsonsource.EndObject {
		err := d.processProperty(ctx, c, d.readValueAnnotation, func(result parseResult, name string) error {
			switch result {
			case resultODataInstanceAnnotation:
				if name == annType {
					return newError(CodeTypeAnnotationNotFirst, "odata.type must be the first annotation of a property payload")
				}
				if reservedAnnotations[name] {
					return newError(CodeUnexpectedAnnotation, "annotation %q is not allowed in a property payload", name)
				}
				return d.readUnknownInstanceAnnotation(ctx, name, &prop.InstanceAnnotations)
			case resultCustomInstanceAnnotation:
				return d.readCustomInstanceAnnotation(ctx, c, name, &prop.InstanceAnnotations)
			case resultMetadataReference:
				return newError(CodeUnexpectedMetadataReference, "metadata reference %q is not allowed in a property payload", name)
			case resultPropertyWithoutValue:
				return newError(CodePropertyWithoutValue, "property %q has annotations but no value", name).withProperty(name)
			case resultPropertyWithValue:
				if name != valuePropertyName {
					return newError(CodeMissingValueProperty, "unexpected property %q in a property payload", name).withProperty(name)
				}
				if err := c.CheckDuplicate(name); err != nil {
					return err
				}
				typeName := payloadTypeName
				if v, ok := c.Annotation(name, annType); ok && typeName == "" {
					typeName = v.(string)
				}
				isNull := d.r.NodeKind() == jsonsource.PrimitiveValue && d.r.Value() == nil
				v, err := d.readNonEntityValue(ctx, typeName, expected, nil, nil,
					readContext{propertyName: prop.Name, validateNull: true})
				if err != nil {
					return err
				}
				prop.Value = v
				state = valueFound
				if isNull {
					state = valueFoundNull
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if state == valueNotFound {
		return nil, newError(CodeMissingValueProperty, "the property payload has no %q member", valuePropertyName)
	}
	return prop, d.readPayloadEnd(ctx)
}

// tryReadNullMarker reads the legacy {"@odata.null": true} form of a null
// top-level property.
func (d *Deserializer) tryReadNullMarker(ctx context.Context, expected *edm.TypeReference) (bool, error) {
	if d.r.NodeKind() != jsonsource.Property {
		return false, nil
	}
	raw, err := d.propertyName()
	if err != nil {
		return false, err
	}
	if kind, _, annotation := d.classifyName(raw); kind != nameInstanceAnnotation || annotation != annNull {
		return false, nil
	}
	if err := d.read(ctx); err != nil {
		return false, err
	}
	if b, ok := d.r.Value().(bool); d.r.NodeKind() != jsonsource.PrimitiveValue || !ok || !b {
		return false, newError(CodeInvalidAnnotationValue, "odata.null must be true")
	}
	if err := d.read(ctx); err != nil {
		return false, err
	}
	if !expected.Nullable() {
		return false, newError(CodeNullValueNotAllowed, "null is not allowed for non-nullable type %s", expected.FullName()).
			withTypes(expected.FullName(), "null")
	}
	return true, nil
}

// isStructuredProperty decides whether the payload object is itself a
// structured value rather than a {"value": ...} wrapper. A structured type
// that does not declare "value" is still wrapped when the member is present.
func (d *Deserializer) isStructuredProperty(ctx context.Context, expected *edm.TypeReference, payloadTypeName string) (bool, error) {
	var st *edm.StructuredType
	if expected != nil && !isGenericUntyped(expected) {
		st = expected.Structured()
	} else if payloadTypeName != "" {
		t, _, err := d.md.ResolveTypeName(expected, payloadTypeName)
		if err == nil && t != nil && t.Kind().IsStructured() {
			st, _ = t.(*edm.StructuredType)
		}
	}
	if st == nil {
		return false, nil
	}
	if d.md.FindProperty(st, valuePropertyName) != nil {
		return true, nil
	}
	wrapped, err := d.hasValueMember(ctx)
	return !wrapped, err
}

// hasValueMember reports whether the entered object has a "value" member
// without consuming anything.
func (d *Deserializer) hasValueMember(ctx context.Context) (found bool, err error) {
	if d.r.IsBuffering() {
		return false, nil
	}
	if err := wrapSourceError(d.r.StartBuffering(ctx)); err != nil {
		return false, err
	}
	defer func() {
		if stopErr := wrapSourceError(d.r.StopBuffering(ctx)); err == nil {
			err = stopErr
		}
	}()
	for d.r.NodeKind() == jsonsource.Property {
		name, err := d.propertyName()
		if err != nil {
			return false, err
		}
		if name == valuePropertyName {
			return true, nil
		}
		if err := d.skip(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ReadCollection reads a top-level collection of non-entity values.
func (d *Deserializer) ReadCollection(ctx context.Context, elem *edm.TypeReference) (*value.CollectionValue, error) {
	var expected *edm.TypeReference
	if elem != nil {
		expected = edm.CollectionRef(elem).WithNullable(false)
	}
	prop, err := d.ReadProperty(ctx, expected)
	if err != nil {
		return nil, err
	}
	cv, ok := prop.Value.(*value.CollectionValue)
	if !ok {
		return nil, newError(CodeArrayExpected, "the payload does not hold a collection")
	}
	return cv, nil
}

// ResourceIterator reads a top-level resource one nested resource info at a
// time. Expanded content is read completely before its info is returned.
type ResourceIterator struct {
	d     *Deserializer
	state *resourceState
	open  bool
	done  bool
	err   error
}

// BeginResource starts reading a top-level resource.
func (d *Deserializer) BeginResource(ctx context.Context, expected *edm.TypeReference) (*ResourceIterator, error) {
	contextURL, err := d.readPayloadStart(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	state, err := d.readResourceStart(ctx, expected, "", contextURL)
	if err != nil {
		d.guard.leave()
		return nil, err
	}
	return &ResourceIterator{d: d, state: state, open: true}, nil
}

// Resource returns the resource read so far.
func (it *ResourceIterator) Resource() *value.Resource { return it.state.resource }

// Next returns the next nested resource info, or nil when all members have
// been read.
func (it *ResourceIterator) Next(ctx context.Context) (*value.NestedResourceInfo, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.done {
		return nil, nil
	}
	info, err := it.d.readResourceContent(ctx, it.state)
	if err != nil {
		return nil, it.fail(err)
	}
	if info == nil {
		it.done = true
	}
	return info, nil
}

// End reads the remaining members and the end of the payload.
func (it *ResourceIterator) End(ctx context.Context) (*value.Resource, error) {
	for !it.done {
		if _, err := it.Next(ctx); err != nil {
			return nil, err
		}
	}
	if it.err != nil {
		return nil, it.err
	}
	it.close()
	if err := it.d.readPayloadEnd(ctx); err != nil {
		return nil, it.fail(err)
	}
	return it.state.resource, nil
}

func (it *ResourceIterator) fail(err error) error {
	it.err = err
	it.close()
	return err
}

func (it *ResourceIterator) close() {
	if it.open {
		it.open = false
		it.d.guard.leave()
	}
}

// ReadResource reads a whole top-level resource.
func (d *Deserializer) ReadResource(ctx context.Context, expected *edm.TypeReference) (*value.Resource, error) {
	it, err := d.BeginResource(ctx, expected)
	if err != nil {
		return nil, err
	}
	return it.End(ctx)
}

// ReadResourceSet reads a top-level resource set.
func (d *Deserializer) ReadResourceSet(ctx context.Context, elem *edm.TypeReference) (*value.ResourceSet, error) {
	contextURL, err := d.readPayloadStart(ctx)
	if err != nil {
		return nil, err
	}
	set, err := d.readResourceSetMembers(ctx, elem, contextURL)
	if err != nil {
		return nil, err
	}
	return set, d.readPayloadEnd(ctx)
}

func (d *Deserializer) readResourceSetMembers(ctx context.Context, elem *edm.TypeReference, contextURL *url.URL) (*value.ResourceSet, error) {
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()

	set := &value.ResourceSet{ContextURL: contextURL, Items: []any{}}
	if elem != nil {
		set.TypeName = edm.CollectionRef(elem).FullName()
	}
	c := NewCollector()
	itemTypeName := ""
	typeName, found, err := d.tryReadTypeAnnotation(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		item, ok := edm.CollectionItemTypeName(typeName)
		if !ok {
			return nil, newError(CodeMissingCollectionName, "type name %q of a resource set must be a collection type name", typeName).
				withTypes("Collection", typeName)
		}
		if err := c.MarkAnnotationProcessed(annType); err != nil {
			return nil, err
		}
		set.TypeName, itemTypeName = typeName, item
	}

	valueFound := false
	for d.r.NodeKind() != jsonsource.EndObject {
		err := d.processProperty(ctx, c, d.readValueAnnotation, func(result parseResult, name string) error {
			switch result {
			case resultODataInstanceAnnotation:
				return d.readResourceSetAnnotation(ctx, set, name)
			case resultCustomInstanceAnnotation:
				return d.readCustomInstanceAnnotation(ctx, c, name, &set.InstanceAnnotations)
			case resultMetadataReference:
				return newError(CodeUnexpectedMetadataReference, "metadata reference %q is not allowed on a resource set", name)
			case resultPropertyWithoutValue:
				return newError(CodePropertyWithoutValue, "property %q has annotations but no value", name).withProperty(name)
			case resultPropertyWithValue:
				if name != valuePropertyName {
					return newError(CodeMissingValueProperty, "unexpected property %q in a resource set", name).withProperty(name)
				}
				if err := c.CheckDuplicate(name); err != nil {
					return err
				}
				items, err := d.readResourceSetArray(ctx, elem, itemTypeName, name)
				if err != nil {
					return err
				}
				set.Items = items.Items
				valueFound = true
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if !valueFound {
		return nil, newError(CodeMissingValueProperty, "the resource set has no %q member", valuePropertyName)
	}
	return set, nil
}

func (d *Deserializer) readResourceSetAnnotation(ctx context.Context, set *value.ResourceSet, name string) error {
	switch name {
	case annType:
		return newError(CodeTypeAnnotationNotFirst, "odata.type must be the first annotation of a resource set")
	case annDelta, annRemoved:
		return newError(CodeDeltaNotSupported, "annotation %q belongs to a delta payload", name)
	case annCount, annNextLink, annDeltaLink:
	default:
		if reservedAnnotations[name] {
			return newError(CodeUnexpectedAnnotation, "annotation %q is not allowed on a resource set", name)
		}
		return d.readUnknownInstanceAnnotation(ctx, name, &set.InstanceAnnotations)
	}
	if err := d.read(ctx); err != nil {
		return err
	}
	var err error
	switch name {
	case annCount:
		var n int64
		n, err = d.readLong(ctx, name)
		set.Count = &n
	case annNextLink:
		set.NextPageLink, err = d.readURI(ctx, name)
	case annDeltaLink:
		set.DeltaLink, err = d.readURI(ctx, name)
	}
	return err
}

// ReadEntityReferenceLink reads a single {"@odata.id": ...} payload.
func (d *Deserializer) ReadEntityReferenceLink(ctx context.Context) (*value.EntityReferenceLink, error) {
	if _, err := d.readPayloadStart(ctx); err != nil {
		return nil, err
	}
	link, err := d.readEntityReferenceLinkMembers(ctx)
	if err != nil {
		return nil, err
	}
	return link, d.readPayloadEnd(ctx)
}

// readEntityReferenceLinkMembers reads the members of an entered reference
// object, leaving the reader on its EndObject.
func (d *Deserializer) readEntityReferenceLinkMembers(ctx context.Context) (*value.EntityReferenceLink, error) {
	link := &value.EntityReferenceLink{}
	c := NewCollector()
	for d.r.NodeKind() == jsonsource.Property {
		raw, err := d.propertyName()
		if err != nil {
			return nil, err
		}
		kind, _, annotation := d.classifyName(raw)
		if kind != nameInstanceAnnotation {
			return nil, newError(CodeInvalidReferenceLink, "unexpected member %q in an entity reference link", raw)
		}
		switch {
		case !isODataAnnotation(annotation):
			err = d.readCustomInstanceAnnotation(ctx, c, annotation, &link.InstanceAnnotations)
		case annotation == annID:
			if err := c.MarkAnnotationProcessed(annotation); err != nil {
				return nil, err
			}
			if err := d.read(ctx); err != nil {
				return nil, err
			}
			link.URL, err = d.readURI(ctx, annID)
		case reservedAnnotations[annotation]:
			return nil, newError(CodeUnexpectedAnnotation, "annotation %q is not allowed in an entity reference link", annotation)
		default:
			err = d.readUnknownInstanceAnnotation(ctx, annotation, &link.InstanceAnnotations)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := d.expectNode(jsonsource.EndObject); err != nil {
		return nil, err
	}
	if link.URL == nil {
		return nil, newError(CodeInvalidReferenceLink, "entity reference link has no odata.id")
	}
	return link, nil
}

// ReadEntityReferenceLinks reads a collection of entity references.
func (d *Deserializer) ReadEntityReferenceLinks(ctx context.Context) (*value.EntityReferenceLinks, error) {
	contextURL, err := d.readPayloadStart(ctx)
	if err != nil {
		return nil, err
	}
	links, err := d.readEntityReferenceLinksMembers(ctx, contextURL)
	if err != nil {
		return nil, err
	}
	return links, d.readPayloadEnd(ctx)
}

func (d *Deserializer) readEntityReferenceLinksMembers(ctx context.Context, contextURL *url.URL) (*value.EntityReferenceLinks, error) {
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()

	links := &value.EntityReferenceLinks{ContextURL: contextURL, Links: []*value.EntityReferenceLink{}}
	c := NewCollector()
	valueFound := false
	for d.r.NodeKind() != jsonsource.EndObject {
		err := d.processProperty(ctx, c, d.readValueAnnotation, func(result parseResult, name string) error {
			switch result {
			case resultODataInstanceAnnotation:
				switch name {
				case annCount:
					if err := d.read(ctx); err != nil {
						return err
					}
					n, err := d.readLong(ctx, name)
					links.Count = &n
					return err
				case annNextLink:
					if err := d.read(ctx); err != nil {
						return err
					}
					var err error
					links.NextPageLink, err = d.readURI(ctx, name)
					return err
				}
				if reservedAnnotations[name] {
					return newError(CodeUnexpectedAnnotation, "annotation %q is not allowed on entity reference links", name)
				}
				return d.readUnknownInstanceAnnotation(ctx, name, &links.InstanceAnnotations)
			case resultCustomInstanceAnnotation:
				return d.readCustomInstanceAnnotation(ctx, c, name, &links.InstanceAnnotations)
			case resultPropertyWithValue:
				if name != valuePropertyName {
					break
				}
				if err := c.CheckDuplicate(name); err != nil {
					return err
				}
				valueFound = true
				return d.readEntityReferenceLinkArray(ctx, links)
			}
			return newError(CodeInvalidReferenceLink, "unexpected member %q in entity reference links", name)
		})
		if err != nil {
			return nil, err
		}
	}
	if !valueFound {
		return nil, newError(CodeMissingValueProperty, "entity reference links have no %q member", valuePropertyName)
	}
	return links, nil
}

func (d *Deserializer) readEntityReferenceLinkArray(ctx context.Context, links *value.EntityReferenceLinks) error {
	if d.r.NodeKind() != jsonsource.StartArray {
		return newError(CodeArrayExpected, "entity reference links must be an array, found %s", d.describeNode())
	}
	if err := d.guard.enter(); err != nil {
		return err
	}
	defer d.guard.leave()
	if err := d.read(ctx); err != nil {
		return err
	}
	for d.r.NodeKind() != jsonsource.EndArray {
		if d.r.NodeKind() != jsonsource.StartObject {
			return newError(CodeObjectExpected, "entity reference link must be an object, found %s", d.describeNode())
		}
		if err := d.read(ctx); err != nil {
			return err
		}
		link, err := d.readEntityReferenceLinkMembers(ctx)
		if err != nil {
			return err
		}
		if err := d.read(ctx); err != nil {
			return err
		}
		links.Links = append(links.Links, link)
	}
	return d.read(ctx)
}
