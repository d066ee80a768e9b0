// Package value holds the object model produced by the JSON reader.
package value

import "net/url"

// InstanceAnnotation is a named annotation value attached to a property,
// resource, or collection.
type InstanceAnnotation struct {
	Name  string
	Value any
}

// TypeAnnotation records the type name written in the payload. A value whose
// type was computed from metadata alone has no type annotation from the wire.
type TypeAnnotation struct {
	TypeName string
	// FromPayload is true when the name came from an odata.type annotation.
	FromPayload bool
}

// Property is a named value.
type Property struct {
	Name                string
	Value               any
	InstanceAnnotations []*InstanceAnnotation
	// ContextURL is only set on properties read as the whole payload.
	ContextURL *url.URL
}

// ResourceValue is a structured value nested inside a property.
type ResourceValue struct {
	TypeName            string
	Properties          []*Property
	InstanceAnnotations []*InstanceAnnotation
	TypeAnnotation      *TypeAnnotation
}

// Property returns the named property, or nil.
func (r *ResourceValue) Property(name string) *Property {
	return findProperty(r.Properties, name)
}

// CollectionValue is an ordered list of primitive, enum, or resource values.
type CollectionValue struct {
	TypeName       string
	Items          []any
	TypeAnnotation *TypeAnnotation
}

// EnumValue is an enum member name together with the enum's qualified name.
type EnumValue struct {
	Value    string
	TypeName string
}

// UntypedValue carries a JSON value verbatim.
type UntypedValue struct {
	RawValue string
}

// StreamReferenceValue describes a media resource or stream property.
type StreamReferenceValue struct {
	EditLink    *url.URL
	ReadLink    *url.URL
	ContentType string
	ETag        string
	// Content holds inline stream content when the payload carried it.
	Content []byte
}

// EntityReferenceLink is a reference to an entity by its id.
type EntityReferenceLink struct {
	URL                 *url.URL
	InstanceAnnotations []*InstanceAnnotation
}

// EntityReferenceLinks is a top-level collection of entity references.
type EntityReferenceLinks struct {
	ContextURL          *url.URL
	Count               *int64
	NextPageLink        *url.URL
	InstanceAnnotations []*InstanceAnnotation
	Links               []*EntityReferenceLink
}

// Operation is an action or function advertised on a resource through a
// "#Namespace.Name" metadata reference property.
type Operation struct {
	Metadata string
	Title    string
	Target   *url.URL
}

// Resource is an entity or complex instance read from the top level or from
// an expanded navigation.
type Resource struct {
	TypeName            string
	ContextURL          *url.URL
	ID                  *url.URL
	IsTransient         bool
	ETag                string
	EditLink            *url.URL
	ReadLink            *url.URL
	MediaResource       *StreamReferenceValue
	Properties          []*Property
	InstanceAnnotations []*InstanceAnnotation
	NestedResourceInfos []*NestedResourceInfo
	Operations          []*Operation
	TypeAnnotation      *TypeAnnotation
}

// Property returns the named property, or nil.
func (r *Resource) Property(name string) *Property {
	return findProperty(r.Properties, name)
}

// NestedResourceInfo returns the named nested resource info, or nil.
func (r *Resource) NestedResourceInfo(name string) *NestedResourceInfo {
	for _, info := range r.NestedResourceInfos {
		if info.Name == name {
			return info
		}
	}
	return nil
}

// ResourceSet is a collection of resources.
type ResourceSet struct {
	TypeName            string
	ContextURL          *url.URL
	Count               *int64
	NextPageLink        *url.URL
	DeltaLink           *url.URL
	InstanceAnnotations []*InstanceAnnotation
	// Items holds *Resource values. Untyped resource sets may also carry
	// primitive and collection items, and nil for null entries.
	Items []any
}

// NestedKind identifies what a nested resource info carries.
type NestedKind int

const (
	NestedDeferred NestedKind = iota
	NestedExpandedResource
	NestedExpandedResourceSet
	NestedEntityReferenceLinks
	NestedStream
	NestedStreamCollection
)

var nestedKindNames = [...]string{
	NestedDeferred:             "Deferred",
	NestedExpandedResource:     "ExpandedResource",
	NestedExpandedResourceSet:  "ExpandedResourceSet",
	NestedEntityReferenceLinks: "EntityReferenceLinks",
	NestedStream:               "Stream",
	NestedStreamCollection:     "StreamCollection",
}

func (k NestedKind) String() string {
	if k < 0 || int(k) >= len(nestedKindNames) {
		return "Unknown"
	}
	return nestedKindNames[k]
}

// NestedResourceInfo describes a navigation, nested complex, or stream
// property that is reported separately from inline values.
type NestedResourceInfo struct {
	Name         string
	IsCollection bool
	IsComplex    bool
	Kind         NestedKind

	URL                *url.URL
	AssociationLinkURL *url.URL
	ContextURL         *url.URL
	// TypeName is the payload-declared type of the nested content, if any.
	TypeName     string
	Count        *int64
	NextPageLink *url.URL

	EntityReferenceLinks []*EntityReferenceLink

	// Resource and ResourceSet hold materialized expanded content. A nil
	// Resource on an expanded singleton means the payload value was null.
	Resource    *Resource
	ResourceSet *ResourceSet

	Stream  *StreamReferenceValue
	Streams []*StreamReferenceValue
}

func findProperty(props []*Property, name string) *Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	return nil
}
