package deserializer

import (
	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

// anonymousUntyped is the open structured type used for objects that carry
// no usable type name.
var anonymousUntyped = edm.NewUntypedStructuredType("", "")

// UntypedInput holds what ResolveUntypedType looks at.
type UntypedInput struct {
	Expected        *edm.TypeReference
	PayloadTypeName string
	Node            jsonsource.NodeKind
	// Raw is the scalar value when Node is PrimitiveValue.
	Raw     any
	Guesser PrimitiveTypeGuesser
	// ReadUntypedAsString resolves everything but booleans to Edm.Untyped.
	ReadUntypedAsString bool
	// GenerateTypeIfMissing names synthesized structured types after the payload type name.
	GenerateTypeIfMissing bool
}

// ResolveUntypedType computes the type a value is read as when metadata does
// not fully describe it. It does not touch the token source; the same input
// always yields an equivalent reference.
func ResolveUntypedType(in UntypedInput) (*edm.TypeReference, error) {
	if in.Expected != nil && (in.ReadUntypedAsString || !isGenericUntyped(in.Expected)) {
		return in.Expected, nil
	}

	if in.ReadUntypedAsString {
		if _, ok := in.Raw.(bool); ok && in.Node == jsonsource.PrimitiveValue {
			return edm.PrimitiveRef(edm.PrimitiveBoolean, true), nil
		}
		return edm.UntypedRef(), nil
	}

	switch in.Node {
	case jsonsource.PrimitiveValue:
		return resolveUntypedPrimitive(in)
	case jsonsource.StartObject:
		if in.PayloadTypeName != "" && in.GenerateTypeIfMissing {
			if edm.IsCollectionTypeName(in.PayloadTypeName) {
				return nil, newError(CodeCollectionTypeName,
					"collection type name %q cannot be used for an object", in.PayloadTypeName).
					withTypes("", in.PayloadTypeName)
			}
			return edm.NewTypeReference(namedUntyped(in.PayloadTypeName), true), nil
		}
		return edm.NewTypeReference(anonymousUntyped, true), nil
	case jsonsource.StartArray:
		if in.PayloadTypeName != "" && in.GenerateTypeIfMissing {
			item, ok := edm.CollectionItemTypeName(in.PayloadTypeName)
			if !ok {
				return nil, newError(CodeMissingCollectionName,
					"type name %q of an array must be a collection type name", in.PayloadTypeName).
					withTypes("Collection", in.PayloadTypeName)
			}
			return edm.CollectionRef(untypedElement(item)), nil
		}
		return edm.CollectionRef(edm.NewTypeReference(anonymousUntyped, true)), nil
	}
	return edm.UntypedRef(), nil
}

func resolveUntypedPrimitive(in UntypedInput) (*edm.TypeReference, error) {
	if in.Guesser != nil {
		if t := in.Guesser(in.Raw, in.PayloadTypeName); t != nil {
			return t, nil
		}
	}

	if in.Raw == nil {
		if in.PayloadTypeName == "" {
			return edm.PrimitiveRef(edm.PrimitiveString, true), nil
		}
		if item, ok := edm.CollectionItemTypeName(in.PayloadTypeName); ok {
			return edm.CollectionRef(untypedElement(item)), nil
		}
		if p, ok := edm.LookupPrimitive(in.PayloadTypeName); ok {
			return edm.NewTypeReference(p, true), nil
		}
		return namedDefinition(in.PayloadTypeName, edm.PrimitiveString), nil
	}

	var kind edm.PrimitiveKind
	switch in.Raw.(type) {
	case bool:
		kind = edm.PrimitiveBoolean
	case string:
		kind = edm.PrimitiveString
	default:
		kind = edm.PrimitiveDecimal
	}

	if in.PayloadTypeName == "" {
		return edm.PrimitiveRef(kind, true), nil
	}
	if edm.IsCollectionTypeName(in.PayloadTypeName) {
		return nil, newError(CodeCollectionTypeName,
			"collection type name %q cannot be used for a primitive value", in.PayloadTypeName).
			withTypes(kind.String(), in.PayloadTypeName)
	}
	if p, ok := edm.LookupPrimitive(in.PayloadTypeName); ok {
		return edm.NewTypeReference(p, true), nil
	}
	return namedDefinition(in.PayloadTypeName, kind), nil
}

func untypedElement(itemName string) *edm.TypeReference {
	if p, ok := edm.LookupPrimitive(itemName); ok {
		return edm.NewTypeReference(p, true)
	}
	return edm.NewTypeReference(namedUntyped(itemName), true)
}

func namedUntyped(typeName string) *edm.StructuredType {
	ns, name := edm.SplitQualifiedName(typeName)
	return edm.NewUntypedStructuredType(ns, name)
}

func namedDefinition(typeName string, underlying edm.PrimitiveKind) *edm.TypeReference {
	ns, name := edm.SplitQualifiedName(typeName)
	return edm.NewTypeReference(edm.NewTypeDefinition(ns, name, underlying), true)
}

func isGenericUntyped(t *edm.TypeReference) bool {
	_, ok := t.Definition().(*edm.UntypedType)
	return ok
}
