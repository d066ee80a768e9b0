package deserializer

import (
	"context"
	"net/url"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// resourceState is the scope of one resource object being read.
type resourceState struct {
	resource  *value.Resource
	st        *edm.StructuredType
	collector *Collector
	// propertyFound is set once a data or navigation property was read;
	// odata.id and odata.etag must precede it.
	propertyFound bool
}

// readResourceStart reads the leading annotations of a resource whose
// StartObject was consumed and computes its type. outerTypeName is an
// odata.type given as a property annotation by the parent; one inside the
// object wins.
func (d *Deserializer) readResourceStart(ctx context.Context, expected *edm.TypeReference, outerTypeName string, contextURL *url.URL) (*resourceState, error) {
	c := NewCollector()
	if contextURL != nil {
		if err := c.MarkAnnotationProcessed(annContext); err != nil {
			return nil, err
		}
	}
	payloadTypeName, found, err := d.tryReadTypeAnnotation(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		if err := c.MarkAnnotationProcessed(annType); err != nil {
			return nil, err
		}
	} else {
		payloadTypeName = outerTypeName
	}

	target, err := d.computeTarget(expected, payloadTypeName, true, func() edm.TypeKind { return edm.KindEntity }, "")
	if err != nil {
		return nil, err
	}
	st := target.Type.Structured()
	if !target.Kind.IsStructured() || (st == nil && target.Type != nil) {
		return nil, newError(CodeIncorrectTypeKind, "a resource must have a structured type, found %s", target.Kind).
			withTypes("Entity", target.Kind.String())
	}
	if st == nil {
		st = anonymousUntyped
	}
	return &resourceState{
		resource: &value.Resource{
			TypeName:       resourceTypeName(st, payloadTypeName),
			ContextURL:     contextURL,
			TypeAnnotation: typeAnnotation(payloadTypeName, target.Type),
		},
		st:        st,
		collector: c,
	}, nil
}

// readResourceContent reads members of the resource until the next nested
// resource info, which it returns after its content was read. It returns
// nil at the end of the object, leaving the reader on EndObject.
func (d *Deserializer) readResourceContent(ctx context.Context, state *resourceState) (*value.NestedResourceInfo, error) {
	for d.r.NodeKind() != jsonsource.EndObject {
		var info *value.NestedResourceInfo
		err := d.processProperty(ctx, state.collector, d.readPropertyAnnotationValue, func(result parseResult, name string) error {
			var err error
			switch result {
			case resultODataInstanceAnnotation:
				return d.readResourceInstanceAnnotation(ctx, state, name)
			case resultCustomInstanceAnnotation:
				return d.readCustomInstanceAnnotation(ctx, state.collector, name, &state.resource.InstanceAnnotations)
			case resultMetadataReference:
				return d.readMetadataReference(ctx, state, name)
			case resultPropertyWithoutValue:
				state.propertyFound = true
				info, err = d.readPropertyWithoutValue(ctx, state, name)
			case resultPropertyWithValue:
				state.propertyFound = true
				info, err = d.readPropertyWithValue(ctx, state, name)
			default:
				return nil
			}
			return withPropertyName(err, name)
		})
		if err != nil {
			return nil, err
		}
		if info != nil {
			state.resource.NestedResourceInfos = append(state.resource.NestedResourceInfos, info)
			return info, nil
		}
	}
	return nil, nil
}

// readResourceInstanceAnnotation handles "@odata.*" on the resource. The
// reader is on the annotation's Property node.
func (d *Deserializer) readResourceInstanceAnnotation(ctx context.Context, state *resourceState, name string) error {
	res := state.resource
	switch name {
	case annType:
		return newError(CodeTypeAnnotationNotFirst, "odata.type must be the first annotation of a resource")
	case annRemoved, annDelta, annDeltaLink:
		return newError(CodeDeltaNotSupported, "annotation %q belongs to a delta payload", name)
	case annContext, annID, annETag, annEditLink, annReadLink,
		annMediaEditLink, annMediaReadLink, annMediaContentType, annMediaETag:
	default:
		if reservedAnnotations[name] {
			return newError(CodeUnexpectedAnnotation, "annotation %q is not allowed on a resource", name)
		}
		return d.readUnknownInstanceAnnotation(ctx, name, &res.InstanceAnnotations)
	}

	if err := d.read(ctx); err != nil {
		return err
	}
	var err error
	switch name {
	case annContext:
		if state.propertyFound {
			return newError(CodeAnnotationAfterProperty, "odata.context must precede all properties")
		}
		res.ContextURL, err = d.readURI(ctx, name)
	case annID:
		if state.propertyFound {
			return newError(CodeAnnotationAfterProperty, "odata.id must precede all properties")
		}
		if d.r.NodeKind() == jsonsource.PrimitiveValue && d.r.Value() == nil {
			res.IsTransient = true
			return d.read(ctx)
		}
		res.ID, err = d.readURI(ctx, name)
	case annETag:
		if state.propertyFound {
			return newError(CodeAnnotationAfterProperty, "odata.etag must precede all properties")
		}
		res.ETag, err = d.readString(ctx, name)
	case annEditLink:
		res.EditLink, err = d.readURI(ctx, name)
	case annReadLink:
		res.ReadLink, err = d.readURI(ctx, name)
	case annMediaEditLink:
		mediaResource(res).EditLink, err = d.readURI(ctx, name)
	case annMediaReadLink:
		mediaResource(res).ReadLink, err = d.readURI(ctx, name)
	case annMediaContentType:
		mediaResource(res).ContentType, err = d.readString(ctx, name)
	case annMediaETag:
		mediaResource(res).ETag, err = d.readString(ctx, name)
	}
	return err
}

func mediaResource(res *value.Resource) *value.StreamReferenceValue {
	if res.MediaResource == nil {
		res.MediaResource = &value.StreamReferenceValue{}
	}
	return res.MediaResource
}

// readMetadataReference reads "#NS.Operation": {...} or an array of such
// objects into the resource's operations.
func (d *Deserializer) readMetadataReference(ctx context.Context, state *resourceState, name string) error {
	if err := state.collector.CheckDuplicate(name); err != nil {
		return err
	}
	if err := d.read(ctx); err != nil {
		return err
	}
	if d.r.NodeKind() == jsonsource.StartObject {
		op, err := d.readOperation(ctx, name)
		if err != nil {
			return err
		}
		state.resource.Operations = append(state.resource.Operations, op)
		return nil
	}
	if d.r.NodeKind() != jsonsource.StartArray {
		return newError(CodeObjectExpected, "metadata reference %q must be an object or an array of objects", name)
	}
	if err := d.read(ctx); err != nil {
		return err
	}
	for d.r.NodeKind() != jsonsource.EndArray {
		if d.r.NodeKind() != jsonsource.StartObject {
			return newError(CodeObjectExpected, "metadata reference %q must contain objects", name)
		}
		op, err := d.readOperation(ctx, name)
		if err != nil {
			return err
		}
		state.resource.Operations = append(state.resource.Operations, op)
	}
	return d.read(ctx)
}

func (d *Deserializer) readOperation(ctx context.Context, metadataName string) (*value.Operation, error) {
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	op := &value.Operation{Metadata: metadataName}
	seen := map[string]bool{}
	for d.r.NodeKind() == jsonsource.Property {
		name, err := d.propertyName()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, newError(CodeDuplicateProperty, "duplicate member %q in operation %q", name, metadataName)
		}
		seen[name] = true
		if err := d.read(ctx); err != nil {
			return nil, err
		}
		switch name {
		case "title":
			op.Title, err = d.readString(ctx, "title")
		case "target":
			op.Target, err = d.readURI(ctx, "target")
		default:
			err = d.skip(ctx)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := d.expectNode(jsonsource.EndObject); err != nil {
		return nil, err
	}
	return op, d.read(ctx)
}

// readPropertyWithoutValue handles a property only present through its
// annotations.
func (d *Deserializer) readPropertyWithoutValue(ctx context.Context, state *resourceState, name string) (*value.NestedResourceInfo, error) {
	prop := d.md.FindProperty(state.st, name)
	if prop == nil {
		return d.readUndeclaredProperty(ctx, state, name, false)
	}
	c := state.collector
	if prop.IsNavigation() {
		if err := c.CheckDuplicate(name); err != nil {
			return nil, err
		}
		if d.s.ReadingRequest {
			return d.bindNestedResourceInfo(c, name, prop.Type.IsCollection())
		}
		return d.deferredNestedResourceInfo(c, name, prop.Type.IsCollection())
	}
	if prop.Type.IsStream() {
		if err := d.addStreamProperty(state, name); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, newError(CodePropertyWithoutValue, "property %q has annotations but no value", name)
}

// readPropertyWithValue dispatches a property whose value the reader is on.
func (d *Deserializer) readPropertyWithValue(ctx context.Context, state *resourceState, name string) (*value.NestedResourceInfo, error) {
	prop := d.md.FindProperty(state.st, name)
	if prop == nil {
		return d.readUndeclaredProperty(ctx, state, name, true)
	}
	t := prop.Type
	switch {
	case t.StructuredOrElement() != nil:
		return d.readExpandedNestedResourceInfo(ctx, state, prop)
	case t.IsStream():
		return d.readStreamPropertyValue(ctx, state, name)
	case d.shouldReadAsStream(t, prop, name, state.st):
		return d.readAsStream(ctx, state.collector, name, t)
	}

	c := state.collector
	typeName, err := d.dataPropertyTypeName(c, name)
	if err != nil {
		return nil, err
	}
	v, err := d.readNonEntityValue(ctx, typeName, t, nil, nil, readContext{propertyName: name, validateNull: true})
	if err != nil {
		return nil, err
	}
	return nil, d.addProperty(state, name, v)
}

func (d *Deserializer) addProperty(state *resourceState, name string, v any) error {
	if err := state.collector.CheckDuplicate(name); err != nil {
		return err
	}
	state.resource.Properties = append(state.resource.Properties, &value.Property{
		Name:                name,
		Value:               v,
		InstanceAnnotations: state.collector.CustomAnnotationsFor(name),
	})
	return nil
}

// readUndeclaredProperty handles a property the resource's type does not
// declare. Link and media annotations make it a deferred navigation or a
// stream; otherwise it is a dynamic property of an open type.
func (d *Deserializer) readUndeclaredProperty(ctx context.Context, state *resourceState, name string, hasValue bool) (*value.NestedResourceInfo, error) {
	c := state.collector
	_, hasNavigationLink := c.Annotation(name, annNavigationLink)
	_, hasAssociationLink := c.Annotation(name, annAssociationLink)
	if (hasNavigationLink || hasAssociationLink) && !d.s.ReadingRequest {
		if hasValue {
			if err := d.skip(ctx); err != nil {
				return nil, err
			}
		}
		if err := c.CheckDuplicate(name); err != nil {
			return nil, err
		}
		return d.deferredNestedResourceInfo(c, name, false)
	}
	if hasMediaAnnotations(c, name) {
		if hasValue {
			if err := d.skip(ctx); err != nil {
				return nil, err
			}
		}
		return nil, d.addStreamProperty(state, name)
	}
	if !hasValue {
		return nil, newError(CodeOpenPropertyWithoutValue, "open property %q has annotations but no value", name)
	}
	if !d.md.IsOpen(state.st) && !d.s.AllowUndeclaredProperties {
		return nil, newError(CodeUndeclaredProperty, "property %q is not declared on %s", name, state.st.FullName())
	}
	d.log.Debug("reading undeclared property", "property", name, "type", state.st.FullName())

	typeName, err := d.dataPropertyTypeName(c, name)
	if err != nil {
		return nil, err
	}
	t, err := d.resolveDynamicType(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if st := t.StructuredOrElement(); st != nil && !(t.IsCollection() && st.IsUntyped() && d.s.ReadUntypedCollectionAsCollection) {
		return d.readDynamicNestedResourceInfo(ctx, state, name, t, typeName)
	}
	if d.shouldReadAsStream(t, nil, name, state.st) {
		return d.readAsStream(ctx, c, name, t)
	}

	var v any
	if isGenericUntyped(t) {
		v, err = d.readUntypedValue(ctx, false, "")
	} else {
		v, err = d.readNonEntityValue(ctx, typeName, t, nil, nil, readContext{propertyName: name, dynamic: true})
	}
	if err != nil {
		return nil, err
	}
	return nil, d.addProperty(state, name, v)
}

func hasMediaAnnotations(c *Collector, name string) bool {
	for _, a := range c.AnnotationsFor(name) {
		switch a.Name {
		case annMediaEditLink, annMediaReadLink, annMediaContentType, annMediaETag:
			return true
		}
	}
	return false
}
