package edm

// TypeReference pairs a type with nullability. References are immutable;
// a nil *TypeReference stands for "no type" and reports KindNone.
type TypeReference struct {
	def      Type
	nullable bool
}

// NewTypeReference creates a reference to t.
func NewTypeReference(t Type, nullable bool) *TypeReference {
	if t == nil {
		return nil
	}
	return &TypeReference{def: t, nullable: nullable}
}

// PrimitiveRef is shorthand for a reference to a primitive kind.
func PrimitiveRef(kind PrimitiveKind, nullable bool) *TypeReference {
	return NewTypeReference(PrimitiveTypeOf(kind), nullable)
}

// CollectionRef wraps an element reference in a collection reference.
func CollectionRef(element *TypeReference) *TypeReference {
	return NewTypeReference(NewCollectionType(element), true)
}

// UntypedRef returns a nullable reference to Edm.Untyped.
func UntypedRef() *TypeReference {
	return NewTypeReference(Untyped, true)
}

// Definition returns the referenced type, or nil.
func (r *TypeReference) Definition() Type {
	if r == nil {
		return nil
	}
	return r.def
}

// Kind returns the kind of the referenced type; KindNone for a nil reference.
func (r *TypeReference) Kind() TypeKind {
	if r == nil {
		return KindNone
	}
	return r.def.Kind()
}

// Nullable reports whether null is a permitted value. A nil reference is nullable.
func (r *TypeReference) Nullable() bool {
	if r == nil {
		return true
	}
	return r.nullable
}

// WithNullable returns a copy of r with the given nullability.
func (r *TypeReference) WithNullable(nullable bool) *TypeReference {
	if r == nil {
		return nil
	}
	return &TypeReference{def: r.def, nullable: nullable}
}

// FullName returns the qualified name of the referenced type, or "".
func (r *TypeReference) FullName() string {
	if r == nil {
		return ""
	}
	return r.def.FullName()
}

// IsUntyped reports whether the reference is Edm.Untyped or an untyped structured type.
func (r *TypeReference) IsUntyped() bool {
	if r == nil {
		return false
	}
	switch t := r.def.(type) {
	case *UntypedType:
		return true
	case *StructuredType:
		return t.untyped
	}
	return false
}

// IsCollection reports whether the reference is a collection.
func (r *TypeReference) IsCollection() bool {
	return r.Kind() == KindCollection
}

// Primitive returns the primitive type, or nil if the reference is not primitive.
func (r *TypeReference) Primitive() *PrimitiveType {
	if r == nil {
		return nil
	}
	p, _ := r.def.(*PrimitiveType)
	return p
}

// PrimitiveKind returns the primitive kind, or PrimitiveNone.
func (r *TypeReference) PrimitiveKind() PrimitiveKind {
	if p := r.Primitive(); p != nil {
		return p.kind
	}
	return PrimitiveNone
}

// IsPrimitive reports whether the reference is to the given primitive kind.
func (r *TypeReference) IsPrimitive(kind PrimitiveKind) bool {
	return r.PrimitiveKind() == kind
}

// IsSpatial reports whether the reference is a spatial primitive.
func (r *TypeReference) IsSpatial() bool {
	return r.PrimitiveKind().IsSpatial()
}

// IsStream reports whether the reference is Edm.Stream.
func (r *TypeReference) IsStream() bool {
	return r.PrimitiveKind() == PrimitiveStream
}

// Enum returns the enum type, or nil.
func (r *TypeReference) Enum() *EnumType {
	if r == nil {
		return nil
	}
	e, _ := r.def.(*EnumType)
	return e
}

// Structured returns the structured type, or nil.
func (r *TypeReference) Structured() *StructuredType {
	if r == nil {
		return nil
	}
	st, _ := r.def.(*StructuredType)
	return st
}

// StructuredOrElement returns the structured type of the reference or, for
// collections, of its element. Returns nil otherwise.
func (r *TypeReference) StructuredOrElement() *StructuredType {
	if st := r.Structured(); st != nil {
		return st
	}
	return r.ElementType().Structured()
}

// Collection returns the collection type, or nil.
func (r *TypeReference) Collection() *CollectionType {
	if r == nil {
		return nil
	}
	c, _ := r.def.(*CollectionType)
	return c
}

// ElementType returns the element reference of a collection, or nil.
func (r *TypeReference) ElementType() *TypeReference {
	if c := r.Collection(); c != nil {
		return c.Element
	}
	return nil
}

// TypeDefinition returns the type definition, or nil.
func (r *TypeReference) TypeDefinition() *TypeDefinition {
	if r == nil {
		return nil
	}
	td, _ := r.def.(*TypeDefinition)
	return td
}

// UnderlyingPrimitive returns a reference to the primitive type a type
// definition narrows, keeping nullability. Other references return themselves.
func (r *TypeReference) UnderlyingPrimitive() *TypeReference {
	if td := r.TypeDefinition(); td != nil {
		return NewTypeReference(td.Underlying, r.Nullable())
	}
	return r
}
