package deserializer

import (
	"context"
	"net/url"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// deferredNestedResourceInfo builds the info of a navigation property that
// is only linked, not expanded.
func (d *Deserializer) deferredNestedResourceInfo(c *Collector, name string, isCollection bool) (*value.NestedResourceInfo, error) {
	info := &value.NestedResourceInfo{Name: name, IsCollection: isCollection, Kind: value.NestedDeferred}
	for _, a := range c.AnnotationsFor(name) {
		switch a.Name {
		case annNavigationLink:
			info.URL = a.Value.(*url.URL)
		case annAssociationLink:
			info.AssociationLinkURL = a.Value.(*url.URL)
		case annContext:
			info.ContextURL = a.Value.(*url.URL)
		default:
			return nil, newError(CodeUnexpectedPropertyAnnotation, "annotation %q is not allowed on deferred navigation property %q", a.Name, name)
		}
	}
	return info, nil
}

// bindNestedResourceInfo builds the entity reference links of a navigation
// property bound in a request with odata.bind.
func (d *Deserializer) bindNestedResourceInfo(c *Collector, name string, isCollection bool) (*value.NestedResourceInfo, error) {
	v, ok := c.Annotation(name, annBind)
	if !ok {
		return nil, newError(CodePropertyWithoutValue, "navigation property %q has neither a value nor an odata.bind annotation", name)
	}
	for _, a := range c.AnnotationsFor(name) {
		if a.Name != annBind {
			return nil, newError(CodeUnexpectedPropertyAnnotation, "annotation %q is not allowed on bound navigation property %q", a.Name, name)
		}
	}
	links, err := d.bindLinks(v, name, isCollection)
	if err != nil {
		return nil, err
	}
	return &value.NestedResourceInfo{
		Name:                 name,
		IsCollection:         isCollection,
		Kind:                 value.NestedEntityReferenceLinks,
		EntityReferenceLinks: links,
	}, nil
}

func (d *Deserializer) bindLinks(v any, name string, isCollection bool) ([]*value.EntityReferenceLink, error) {
	var raw []string
	switch v := v.(type) {
	case string:
		if isCollection {
			return nil, newError(CodeInvalidBind, "odata.bind for collection navigation property %q must be an array", name)
		}
		raw = []string{v}
	case []string:
		if !isCollection {
			return nil, newError(CodeInvalidBind, "odata.bind for single-valued navigation property %q must be a string", name)
		}
		raw = v
	}
	links := make([]*value.EntityReferenceLink, 0, len(raw))
	for _, s := range raw {
		u, err := d.resolveURI(s, annBind)
		if err != nil {
			return nil, err
		}
		links = append(links, &value.EntityReferenceLink{URL: u})
	}
	return links, nil
}

// readExpandedNestedResourceInfo reads the expanded content of a navigation
// property or of a complex-typed property.
func (d *Deserializer) readExpandedNestedResourceInfo(ctx context.Context, state *resourceState, prop *edm.Property) (*value.NestedResourceInfo, error) {
	name, t := prop.Name, prop.Type
	isCollection := t.IsCollection()
	if err := d.checkExpandedShape(name, isCollection); err != nil {
		return nil, err
	}
	c := state.collector
	if err := c.CheckDuplicate(name); err != nil {
		return nil, err
	}

	info := &value.NestedResourceInfo{
		Name:         name,
		IsCollection: isCollection,
		IsComplex:    !prop.IsNavigation(),
		Kind:         value.NestedExpandedResource,
	}
	if isCollection {
		info.Kind = value.NestedExpandedResourceSet
	}
	if err := d.applyNestedAnnotations(c, info, prop.IsNavigation()); err != nil {
		return nil, err
	}

	if isCollection {
		itemTypeName, _ := edm.CollectionItemTypeName(info.TypeName)
		set, err := d.readResourceSetArray(ctx, t.ElementType(), itemTypeName, name)
		if err != nil {
			return nil, err
		}
		set.TypeName = t.FullName()
		set.Count = info.Count
		set.NextPageLink = info.NextPageLink
		set.ContextURL = info.ContextURL
		info.ResourceSet = set
		return info, nil
	}

	if d.r.NodeKind() == jsonsource.PrimitiveValue {
		// checkExpandedShape admits only null here
		if !prop.IsNavigation() && !t.Nullable() {
			return nil, newError(CodeNullValueNotAllowed, "null is not allowed for non-nullable type %s", t.FullName()).
				withTypes(t.FullName(), "null")
		}
		return info, d.read(ctx)
	}
	res, err := d.readNestedResource(ctx, t, info.TypeName)
	if err != nil {
		return nil, err
	}
	info.Resource = res
	return info, nil
}

// checkExpandedShape validates the JSON shape of expanded content before
// anything of it is read.
func (d *Deserializer) checkExpandedShape(name string, isCollection bool) error {
	kind := d.r.NodeKind()
	if isCollection {
		if kind != jsonsource.StartArray {
			return newError(CodeArrayExpected, "expanded collection %q must be an array, found %s", name, d.describeNode()).
				withTypes("array", d.describeNode())
		}
		return nil
	}
	if kind == jsonsource.StartObject || (kind == jsonsource.PrimitiveValue && d.r.Value() == nil) {
		return nil
	}
	return newError(CodeObjectExpected, "expanded property %q must be an object or null, found %s", name, d.describeNode()).
		withTypes("object", d.describeNode())
}

// applyNestedAnnotations copies the property annotations of an expanded
// property onto its info.
func (d *Deserializer) applyNestedAnnotations(c *Collector, info *value.NestedResourceInfo, navigation bool) error {
	for _, a := range c.AnnotationsFor(info.Name) {
		switch {
		case a.Name == annType:
			info.TypeName = a.Value.(string)
		case a.Name == annNavigationLink && navigation:
			info.URL = a.Value.(*url.URL)
		case a.Name == annAssociationLink && navigation:
			info.AssociationLinkURL = a.Value.(*url.URL)
		case a.Name == annContext:
			info.ContextURL = a.Value.(*url.URL)
		case a.Name == annCount && info.IsCollection:
			n := a.Value.(int64)
			info.Count = &n
		case a.Name == annNextLink && info.IsCollection:
			info.NextPageLink = a.Value.(*url.URL)
		case a.Name == annBind && navigation && d.s.ReadingRequest:
			links, err := d.bindLinks(a.Value, info.Name, info.IsCollection)
			if err != nil {
				return err
			}
			info.EntityReferenceLinks = links
		default:
			return newError(CodeUnexpectedPropertyAnnotation, "annotation %q is not allowed on expanded property %q", a.Name, info.Name)
		}
	}
	return nil
}

// readDynamicNestedResourceInfo reads a structured value of an undeclared
// property as expanded content.
func (d *Deserializer) readDynamicNestedResourceInfo(ctx context.Context, state *resourceState, name string, t *edm.TypeReference, typeName string) (*value.NestedResourceInfo, error) {
	isCollection := t.IsCollection()
	if err := d.checkExpandedShape(name, isCollection); err != nil {
		return nil, err
	}
	if err := state.collector.CheckDuplicate(name); err != nil {
		return nil, err
	}
	st := t.StructuredOrElement()
	info := &value.NestedResourceInfo{
		Name:         name,
		IsCollection: isCollection,
		IsComplex:    st.Kind() == edm.KindComplex,
		Kind:         value.NestedExpandedResource,
		TypeName:     typeName,
	}
	if isCollection {
		info.Kind = value.NestedExpandedResourceSet
		itemTypeName, _ := edm.CollectionItemTypeName(typeName)
		set, err := d.readResourceSetArray(ctx, t.ElementType(), itemTypeName, name)
		if err != nil {
			return nil, err
		}
		set.TypeName = collectionTypeName(t, typeName)
		info.ResourceSet = set
		return info, nil
	}
	if d.r.NodeKind() == jsonsource.PrimitiveValue {
		return info, d.read(ctx)
	}
	res, err := d.readNestedResource(ctx, t, typeName)
	if err != nil {
		return nil, err
	}
	info.Resource = res
	return info, nil
}

// readNestedResource reads an expanded resource object completely.
func (d *Deserializer) readNestedResource(ctx context.Context, expected *edm.TypeReference, outerTypeName string) (*value.Resource, error) {
	if err := d.expectNode(jsonsource.StartObject); err != nil {
		return nil, err
	}
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	state, err := d.readResourceStart(ctx, expected, outerTypeName, nil)
	if err != nil {
		return nil, err
	}
	for {
		info, err := d.readResourceContent(ctx, state)
		if err != nil {
			return nil, err
		}
		if info == nil {
			break
		}
	}
	return state.resource, d.read(ctx)
}

// readResourceSetArray reads a JSON array of resources. Items of untyped
// sets may also be primitives or nested arrays, which are read as values.
func (d *Deserializer) readResourceSetArray(ctx context.Context, elem *edm.TypeReference, itemTypeName, name string) (*value.ResourceSet, error) {
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

	untyped := elem == nil || elem.IsUntyped()
	set := &value.ResourceSet{Items: []any{}}
	for d.r.NodeKind() != jsonsource.EndArray {
		switch {
		case d.r.NodeKind() == jsonsource.StartObject:
			res, err := d.readNestedResource(ctx, elem, itemTypeName)
			if err != nil {
				return nil, err
			}
			set.Items = append(set.Items, res)
		case d.r.NodeKind() == jsonsource.PrimitiveValue && d.r.Value() == nil:
			if !untyped && elem != nil && !elem.Nullable() {
				return nil, newError(CodeNullValueNotAllowed, "null is not allowed in collection of non-nullable %s", elem.FullName()).
					withProperty(name).withTypes(elem.FullName(), "null")
			}
			if err := d.read(ctx); err != nil {
				return nil, err
			}
			set.Items = append(set.Items, nil)
		case untyped:
			v, err := d.readDynamicValue(ctx, "", readContext{propertyName: name, dynamic: true})
			if err != nil {
				return nil, err
			}
			set.Items = append(set.Items, v)
		default:
			return nil, newError(CodeObjectExpected, "resource set items must be objects, found %s", d.describeNode()).
				withProperty(name).withTypes("object", d.describeNode())
		}
	}
	return set, d.read(ctx)
}
