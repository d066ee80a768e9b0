package odata

import (
	"github.com/nlstn/go-odata-reader/internal/async"
	"github.com/nlstn/go-odata-reader/internal/deserializer"
	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/metadata"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// Model types.
type (
	// Model holds the types and terms payloads are read against.
	Model = edm.Model
	// Type is any EDM type.
	Type = edm.Type
	// TypeReference is a type together with its nullability.
	TypeReference = edm.TypeReference
	// StructuredType is an entity or complex type.
	StructuredType = edm.StructuredType
	// EnumMember is one member of an enum type.
	EnumMember = edm.EnumMember
)

// NewModel returns an empty model.
func NewModel() *Model { return edm.NewModel() }

// Value types produced by reads.
type (
	Property             = value.Property
	ResourceValue        = value.ResourceValue
	CollectionValue      = value.CollectionValue
	EnumValue            = value.EnumValue
	UntypedValue         = value.UntypedValue
	StreamReferenceValue = value.StreamReferenceValue
	InstanceAnnotation   = value.InstanceAnnotation
	Resource             = value.Resource
	ResourceSet          = value.ResourceSet
	NestedResourceInfo   = value.NestedResourceInfo
	NestedKind           = value.NestedKind
	Operation            = value.Operation
	EntityReferenceLink  = value.EntityReferenceLink
	EntityReferenceLinks = value.EntityReferenceLinks
)

// Kinds of nested resource info.
const (
	NestedDeferred             = value.NestedDeferred
	NestedExpandedResource     = value.NestedExpandedResource
	NestedExpandedResourceSet  = value.NestedExpandedResourceSet
	NestedEntityReferenceLinks = value.NestedEntityReferenceLinks
	NestedStream               = value.NestedStream
	NestedStreamCollection     = value.NestedStreamCollection
)

// Future is the eventual result of an Async read.
type Future[T any] = async.Future[T]

// Hooks.
type (
	// PrimitiveTypeGuesser picks a type for a primitive value read without
	// metadata. Returning nil falls back to the built-in rules.
	PrimitiveTypeGuesser = deserializer.PrimitiveTypeGuesser

	// ReadAsStreamFunc selects properties reported as stream nested infos.
	ReadAsStreamFunc = deserializer.ReadAsStreamFunc

	// TypeResolver resolves payload type names before the model is consulted.
	// Returning nil defers to the model.
	TypeResolver = metadata.CustomTypeResolver

	// SpatialReader reads GeoJSON values of geography and geometry properties.
	SpatialReader = deserializer.SpatialReader
)
