package metadata

import (
	"github.com/nlstn/go-odata-reader/internal/edm"
)

// TargetRequest holds the inputs for choosing the type a value is read as.
type TargetRequest struct {
	// Expected is the type metadata declares for the value; nil when unknown.
	Expected *edm.TypeReference
	// PayloadTypeName is the odata.type found in the payload, if any.
	PayloadTypeName string
	// ForResource allows entity types. Property values must not be entities.
	ForResource bool
	// Fallback supplies the kind when neither metadata nor payload name one.
	Fallback func() edm.TypeKind
	// AllowTypeConflicts keeps the expected type when the payload type conflicts with it.
	AllowTypeConflicts bool
}

// Target is the outcome of ComputeTargetType.
type Target struct {
	Kind edm.TypeKind
	// Type is nil when the value has to be read without metadata.
	Type *edm.TypeReference
	// PayloadType is the type named by the payload, resolved against the model; may be nil.
	PayloadType edm.Type
}

// ComputeTargetType resolves the payload type name and decides the kind and
// type the value is read as. The expected type wins over the payload type
// name, which wins over the shape of the JSON.
func (p *Provider) ComputeTargetType(req TargetRequest) (Target, error) {
	var (
		payloadType edm.Type
		payloadKind edm.TypeKind
	)
	if req.PayloadTypeName != "" {
		var err error
		payloadType, payloadKind, err = p.ResolveTypeName(req.Expected, req.PayloadTypeName)
		if err != nil {
			return Target{}, err
		}
	}

	expected := req.Expected
	if _, generic := expected.Definition().(*edm.UntypedType); generic {
		if req.PayloadTypeName == "" {
			return Target{Kind: edm.KindUntyped, Type: expected}, nil
		}
		// Edm.Untyped declares nothing; the payload type decides.
		expected = nil
	}

	kind, err := targetKind(req, expected, payloadKind)
	if err != nil {
		return Target{}, err
	}

	target := Target{Kind: kind, PayloadType: payloadType}
	if kind == edm.KindPrimitive {
		target.Type, err = primitiveTarget(expected, payloadType, req)
	} else {
		target.Type, err = nonPrimitiveTarget(kind, expected, payloadType, req)
	}
	if err != nil {
		return Target{}, err
	}
	return target, nil
}

func targetKind(req TargetRequest, expected *edm.TypeReference, payloadKind edm.TypeKind) (edm.TypeKind, error) {
	if payloadKind == edm.KindEntity && !req.ForResource {
		return edm.KindNone, &ResolveError{Reason: ReasonEntityValueNotAllowed, TypeName: req.PayloadTypeName}
	}

	var kind edm.TypeKind
	switch {
	case expected != nil:
		kind = expected.Kind()
	case payloadKind != edm.KindNone:
		kind = payloadKind
	case req.Fallback != nil:
		kind = req.Fallback()
	default:
		kind = edm.KindNone
	}

	if payloadKind != edm.KindNone && payloadKind != kind && !req.AllowTypeConflicts && !kindsCompatible(kind, payloadKind, expected, req.PayloadTypeName) {
		return edm.KindNone, &ResolveError{
			Reason:       ReasonIncorrectTypeKind,
			TypeName:     req.PayloadTypeName,
			ExpectedKind: kind,
			ActualKind:   payloadKind,
		}
	}
	return kind, nil
}

// kindsCompatible covers the kind mismatches that are still valid: a type
// definition may be annotated with its underlying primitive type.
func kindsCompatible(kind, payloadKind edm.TypeKind, expected *edm.TypeReference, payloadName string) bool {
	if kind == edm.KindTypeDefinition && payloadKind == edm.KindPrimitive {
		if td := expected.TypeDefinition(); td != nil {
			return td.Underlying.FullName() == edm.NormalizeTypeName(payloadName)
		}
	}
	return false
}

func primitiveTarget(expected *edm.TypeReference, payloadType edm.Type, req TargetRequest) (*edm.TypeReference, error) {
	if expected == nil {
		return edm.NewTypeReference(payloadType, true), nil
	}
	if payloadType == nil {
		return expected, nil
	}
	if !edm.IsAssignable(expected.Definition(), payloadType) {
		if req.AllowTypeConflicts {
			return expected, nil
		}
		return nil, &ResolveError{Reason: ReasonIncompatibleType, TypeName: req.PayloadTypeName, ExpectedType: expected.FullName()}
	}
	// A more specific spatial type is kept; numeric promotions read as the declared type.
	payload, ok := payloadType.(*edm.PrimitiveType)
	if ok && payload.PrimitiveKind().IsSpatial() && payload.PrimitiveKind() != expected.PrimitiveKind() {
		return edm.NewTypeReference(payloadType, expected.Nullable()), nil
	}
	return expected, nil
}

func nonPrimitiveTarget(kind edm.TypeKind, expected *edm.TypeReference, payloadType edm.Type, req TargetRequest) (*edm.TypeReference, error) {
	if expected == nil {
		return edm.NewTypeReference(payloadType, true), nil
	}
	if payloadType == nil || payloadType.Kind() != kind {
		return expected, nil
	}
	if !edm.IsAssignable(expected.Definition(), payloadType) {
		if req.AllowTypeConflicts {
			return expected, nil
		}
		return nil, &ResolveError{Reason: ReasonIncompatibleType, TypeName: req.PayloadTypeName, ExpectedType: expected.FullName()}
	}

	switch kind {
	case edm.KindComplex, edm.KindEntity:
		return edm.NewTypeReference(payloadType, expected.Nullable()), nil
	case edm.KindCollection:
		payloadElem := payloadType.(*edm.CollectionType).Element
		expectedElem := expected.ElementType()
		if payloadElem.FullName() == expectedElem.FullName() {
			return expected, nil
		}
		elem := edm.NewTypeReference(payloadElem.Definition(), expectedElem.Nullable())
		return edm.NewTypeReference(edm.NewCollectionType(elem), expected.Nullable()), nil
	}
	return expected, nil
}
