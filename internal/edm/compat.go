package edm

// numeric promotions permitted when a payload names a narrower numeric type
// than the one declared in metadata.
var primitivePromotions = map[PrimitiveKind][]PrimitiveKind{
	PrimitiveByte:   {PrimitiveInt16, PrimitiveInt32, PrimitiveInt64, PrimitiveSingle, PrimitiveDouble, PrimitiveDecimal},
	PrimitiveSByte:  {PrimitiveInt16, PrimitiveInt32, PrimitiveInt64, PrimitiveSingle, PrimitiveDouble, PrimitiveDecimal},
	PrimitiveInt16:  {PrimitiveInt32, PrimitiveInt64, PrimitiveSingle, PrimitiveDouble, PrimitiveDecimal},
	PrimitiveInt32:  {PrimitiveInt64, PrimitiveSingle, PrimitiveDouble, PrimitiveDecimal},
	PrimitiveInt64:  {PrimitiveSingle, PrimitiveDouble, PrimitiveDecimal},
	PrimitiveSingle: {PrimitiveDouble},
}

// IsAssignable reports whether a value of type actual may be read where
// expected is declared.
func IsAssignable(expected, actual Type) bool {
	if expected == nil || actual == nil {
		return true
	}
	if expected == actual {
		return true
	}
	switch exp := expected.(type) {
	case *UntypedType:
		return true
	case *PrimitiveType:
		act, ok := actual.(*PrimitiveType)
		if !ok {
			return false
		}
		return primitiveAssignable(exp.kind, act.kind)
	case *StructuredType:
		act, ok := actual.(*StructuredType)
		if !ok {
			return false
		}
		return act.IsDerivedFrom(exp)
	case *CollectionType:
		act, ok := actual.(*CollectionType)
		if !ok {
			return false
		}
		return IsAssignable(exp.Element.Definition(), act.Element.Definition())
	default:
		return expected.Kind() == actual.Kind() && expected.FullName() == actual.FullName()
	}
}

func primitiveAssignable(expected, actual PrimitiveKind) bool {
	if expected == actual {
		return true
	}
	if expected == PrimitiveGeography {
		return actual.IsGeography()
	}
	if expected == PrimitiveGeometry {
		return actual.IsSpatial() && !actual.IsGeography()
	}
	for _, k := range primitivePromotions[actual] {
		if k == expected {
			return true
		}
	}
	return false
}
