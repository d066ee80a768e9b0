package deserializer

import (
	"context"
	"errors"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/spatial"
	"github.com/nlstn/go-odata-reader/internal/value"
)

// readNonEntityValue reads a primitive, enum, complex, collection, type
// definition, or untyped value. The reader is on the value, or inside its
// object when rc.insideResource is set, and is left after it.
func (d *Deserializer) readNonEntityValue(ctx context.Context, payloadTypeName string, expected *edm.TypeReference, validator *collectionValidator, collector *Collector, rc readContext) (any, error) {
	insideObject := rc.insideResource
	if !insideObject && d.r.NodeKind() == jsonsource.StartObject {
		if err := d.read(ctx); err != nil {
			return nil, err
		}
		insideObject = true
		name, found, err := d.tryReadTypeAnnotation(ctx)
		if err != nil {
			return nil, withPropertyName(err, rc.propertyName)
		}
		if found {
			payloadTypeName = name
		}
	}

	target, err := d.computeTarget(expected, payloadTypeName, false, func() edm.TypeKind {
		return d.fallbackKind(insideObject)
	}, rc.propertyName)
	if err != nil {
		return nil, err
	}

	if !insideObject {
		state, err := d.tryReadNull(ctx, target.Type, rc)
		if err != nil {
			return nil, err
		}
		if state == valueFoundNull {
			return nil, nil
		}
	}

	if rc.collectionItem && target.Kind == edm.KindCollection {
		return nil, newError(CodeNestedCollection, "collections cannot be nested in collections").
			withProperty(rc.propertyName)
	}

	var result any
	switch target.Kind {
	case edm.KindPrimitive:
		result, err = d.readPrimitiveValue(ctx, insideObject, target.Type, rc)
	case edm.KindEnum:
		if insideObject {
			return nil, newError(CodeEnumNotString, "enum value of %s must be a string", target.Type.FullName()).
				withProperty(rc.propertyName)
		}
		result, err = d.readEnumValue(ctx, target.Type, rc)
	case edm.KindComplex, edm.KindEntity:
		if !insideObject {
			if d.r.NodeKind() != jsonsource.StartObject {
				return nil, newError(CodeObjectExpected, "expected an object for %s, found %s", target.Type.FullName(), d.describeNode()).
					withProperty(rc.propertyName).withTypes(target.Type.FullName(), d.describeNode())
			}
			if err := d.read(ctx); err != nil {
				return nil, err
			}
		}
		result, err = d.readResourceValue(ctx, target.Type, payloadTypeName, collector, rc)
	case edm.KindCollection:
		if insideObject {
			return nil, newError(CodeArrayExpected, "expected an array for %s, found an object", target.Type.FullName()).
				withProperty(rc.propertyName).withTypes(target.Type.FullName(), "object")
		}
		result, err = d.readCollectionValue(ctx, target.Type, payloadTypeName, rc)
	case edm.KindTypeDefinition:
		if insideObject {
			return nil, newError(CodePrimitiveExpected, "expected a primitive value for %s, found an object", target.Type.FullName()).
				withProperty(rc.propertyName)
		}
		result, err = d.readTypeDefinitionValue(ctx, target.Type, rc)
	case edm.KindUntyped:
		result, err = d.readUntypedValue(ctx, insideObject, payloadTypeName)
	default:
		return nil, newError(CodeInternal, "cannot read a value of kind %s", target.Kind).withProperty(rc.propertyName)
	}
	if err != nil {
		return nil, withPropertyName(err, rc.propertyName)
	}
	if validator != nil {
		if err := validator.validate(target.Kind, itemTypeName(result, target.Type, payloadTypeName)); err != nil {
			return nil, withPropertyName(err, rc.propertyName)
		}
	}
	return result, nil
}

func (d *Deserializer) fallbackKind(insideObject bool) edm.TypeKind {
	if insideObject {
		return edm.KindComplex
	}
	switch d.r.NodeKind() {
	case jsonsource.StartArray:
		return edm.KindCollection
	case jsonsource.StartObject:
		return edm.KindComplex
	}
	return edm.KindPrimitive
}

// tryReadTypeAnnotation consumes an "@odata.type" member if it is the
// current one.
func (d *Deserializer) tryReadTypeAnnotation(ctx context.Context) (string, bool, error) {
	if d.r.NodeKind() != jsonsource.Property {
		return "", false, nil
	}
	raw, err := d.propertyName()
	if err != nil {
		return "", false, err
	}
	kind, _, annotation := d.classifyName(raw)
	if kind != nameInstanceAnnotation || annotation != annType {
		return "", false, nil
	}
	if err := d.read(ctx); err != nil {
		return "", false, err
	}
	s, err := d.readString(ctx, annType)
	if err != nil {
		return "", false, err
	}
	return edm.NormalizeTypeName(s), true, nil
}

// tryReadNull consumes a null value, rejecting it for non-nullable types
// when rc asks for validation.
func (d *Deserializer) tryReadNull(ctx context.Context, t *edm.TypeReference, rc readContext) (valueState, error) {
	if d.r.NodeKind() != jsonsource.PrimitiveValue || d.r.Value() != nil {
		return valueNotFound, nil
	}
	if rc.validateNull && t != nil && !t.Nullable() && !(rc.dynamic && t.IsCollection()) {
		return valueNotFound, newError(CodeNullValueNotAllowed, "null is not allowed for non-nullable type %s", t.FullName()).
			withProperty(rc.propertyName).withTypes(t.FullName(), "null")
	}
	if err := d.read(ctx); err != nil {
		return valueNotFound, err
	}
	return valueFoundNull, nil
}

func (d *Deserializer) readPrimitiveValue(ctx context.Context, insideObject bool, t *edm.TypeReference, rc readContext) (any, error) {
	if t != nil && t.IsSpatial() {
		return d.readSpatialValue(ctx, insideObject, t)
	}
	if insideObject || d.r.NodeKind() != jsonsource.PrimitiveValue {
		name := "a primitive type"
		if t != nil {
			name = t.FullName()
		}
		return nil, newError(CodePrimitiveExpected, "expected a primitive value for %s, found %s", name, d.structuralNodeName(insideObject)).
			withProperty(rc.propertyName)
	}
	raw := d.r.Value()
	v, err := convertPrimitive(raw, t, d.s.IEEE754Compatible, !rc.dynamic)
	if err != nil {
		return nil, withPropertyName(err, rc.propertyName)
	}
	return v, d.read(ctx)
}

func (d *Deserializer) structuralNodeName(insideObject bool) string {
	if insideObject {
		return "an object"
	}
	return d.describeNode()
}

func (d *Deserializer) readSpatialValue(ctx context.Context, insideObject bool, t *edm.TypeReference) (any, error) {
	v, err := d.spatial.ReadSpatial(ctx, d.r, t.PrimitiveKind(), insideObject, d.guard)
	if err == nil {
		return v, nil
	}
	var (
		e         *Error
		syntaxErr *jsonsource.SyntaxError
	)
	switch {
	case errors.As(err, &e):
		return nil, e
	case errors.As(err, &syntaxErr), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, wrapSourceError(err)
	case errors.Is(err, spatial.ErrTypeMismatch):
		return nil, &Error{Code: CodeIncompatibleType, Message: "spatial value does not match " + t.FullName(), Expected: t.FullName(), Err: err}
	}
	return nil, &Error{Code: CodeInvalidPrimitiveValue, Message: "invalid spatial value for " + t.FullName(), Expected: t.FullName(), Err: err}
}

func (d *Deserializer) readEnumValue(ctx context.Context, t *edm.TypeReference, rc readContext) (any, error) {
	s, ok := d.r.Value().(string)
	if d.r.NodeKind() != jsonsource.PrimitiveValue || !ok {
		return nil, newError(CodeEnumNotString, "enum value of %s must be a string, found %s", t.FullName(), d.describeNode()).
			withProperty(rc.propertyName).withTypes(t.FullName(), d.describeNode())
	}
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	return &value.EnumValue{Value: s, TypeName: t.FullName()}, nil
}

func (d *Deserializer) readTypeDefinitionValue(ctx context.Context, t *edm.TypeReference, rc readContext) (any, error) {
	def := t.TypeDefinition()
	v, err := d.readPrimitiveValue(ctx, false, t.UnderlyingPrimitive(), rc)
	if err != nil {
		return nil, err
	}
	out, err := def.ValueConverter().FromUnderlying(v)
	if err != nil {
		code := CodeInvalidPrimitiveValue
		if errors.Is(err, edm.ErrOverflow) {
			code = CodeTypeDefinitionOverflow
		}
		return nil, &Error{Code: code, Property: rc.propertyName, Message: "cannot convert value to " + def.FullName(), Expected: def.FullName(), Err: err}
	}
	return out, nil
}

// readCollectionValue reads an array of non-entity items.
func (d *Deserializer) readCollectionValue(ctx context.Context, t *edm.TypeReference, payloadTypeName string, rc readContext) (any, error) {
	if d.r.NodeKind() != jsonsource.StartArray {
		return nil, newError(CodeArrayExpected, "expected an array for %s, found %s", t.FullName(), d.describeNode()).
			withProperty(rc.propertyName).withTypes(t.FullName(), d.describeNode())
	}
	if err := d.guard.enter(); err != nil {
		return nil, withPropertyName(err, rc.propertyName)
	}
	defer d.guard.leave()
	if err := d.read(ctx); err != nil {
		return nil, err
	}

	elem := t.ElementType()
	dynamicItems := elem != nil && elem.Structured() != nil && elem.Structured().IsUntyped()
	var validator *collectionValidator
	if elem == nil || dynamicItems {
		item, _ := edm.CollectionItemTypeName(payloadTypeName)
		validator = newCollectionValidator(item)
	}

	items := []any{}
	itemCollector := NewCollector()
	for d.r.NodeKind() != jsonsource.EndArray {
		var (
			item any
			err  error
		)
		itemCollector.Reset()
		if dynamicItems {
			item, err = d.readDynamicItem(ctx, elem, validator, rc.item())
		} else {
			item, err = d.readNonEntityValue(ctx, "", elem, validator, itemCollector, rc.item())
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	return &value.CollectionValue{
		TypeName:       collectionTypeName(t, payloadTypeName),
		Items:          items,
		TypeAnnotation: typeAnnotation(payloadTypeName, t),
	}, nil
}

// readDynamicItem reads an item of an untyped collection; each item
// resolves its own type.
func (d *Deserializer) readDynamicItem(ctx context.Context, elem *edm.TypeReference, validator *collectionValidator, rc readContext) (any, error) {
	t, err := d.resolveDynamicType(ctx, "")
	if err != nil {
		return nil, err
	}
	if isGenericUntyped(t) {
		return d.readUntypedValue(ctx, false, "")
	}
	if t.Structured() != nil && t.Structured().IsUntyped() && elem.FullName() != edm.UntypedTypeName {
		t = elem
	}
	return d.readNonEntityValue(ctx, "", t, validator, nil, rc)
}

// readResourceValue reads the members of a complex or entity value nested
// in a property. The object start and a leading odata.type were consumed.
func (d *Deserializer) readResourceValue(ctx context.Context, t *edm.TypeReference, payloadTypeName string, c *Collector, rc readContext) (any, error) {
	if err := d.guard.enter(); err != nil {
		return nil, err
	}
	defer d.guard.leave()
	if c == nil {
		c = NewCollector()
	}

	st := t.Structured()
	rv := &value.ResourceValue{
		TypeName:       resourceTypeName(st, payloadTypeName),
		TypeAnnotation: typeAnnotation(payloadTypeName, t),
	}
	for d.r.NodeKind() != jsonsource.EndObject {
		err := d.processProperty(ctx, c, d.readValueAnnotation, func(result parseResult, name string) error {
			switch result {
			case resultODataInstanceAnnotation:
				if name == annType {
					return newError(CodeTypeAnnotationNotFirst, "odata.type must be the first member of an object")
				}
				if reservedAnnotations[name] {
					return newError(CodeUnexpectedAnnotation, "annotation %q is not allowed in a %s value", name, rv.TypeName)
				}
				return d.readUnknownInstanceAnnotation(ctx, name, &rv.InstanceAnnotations)
			case resultCustomInstanceAnnotation:
				return d.readCustomInstanceAnnotation(ctx, c, name, &rv.InstanceAnnotations)
			case resultMetadataReference:
				return newError(CodeUnexpectedMetadataReference, "metadata reference %q is not allowed in a nested value", name)
			case resultPropertyWithoutValue:
				return newError(CodePropertyWithoutValue, "property %q has annotations but no value", name).withProperty(name)
			case resultPropertyWithValue:
				p, err := d.readResourceValueProperty(ctx, st, name, c)
				if err != nil {
					return err
				}
				rv.Properties = append(rv.Properties, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if err := d.read(ctx); err != nil {
		return nil, err
	}
	return rv, nil
}

func (d *Deserializer) readResourceValueProperty(ctx context.Context, st *edm.StructuredType, name string, c *Collector) (*value.Property, error) {
	typeName, err := d.dataPropertyTypeName(c, name)
	if err != nil {
		return nil, err
	}
	var v any
	if prop := d.md.FindProperty(st, name); prop != nil {
		v, err = d.readNonEntityValue(ctx, typeName, prop.Type, nil, nil, readContext{propertyName: name, validateNull: true})
	} else {
		if st != nil && !d.md.IsOpen(st) && !d.s.AllowUndeclaredProperties {
			return nil, newError(CodeUndeclaredProperty, "property %q is not declared on %s", name, st.FullName()).withProperty(name)
		}
		v, err = d.readDynamicValue(ctx, typeName, readContext{propertyName: name, dynamic: true})
	}
	if err != nil {
		return nil, withPropertyName(err, name)
	}
	if err := c.CheckDuplicate(name); err != nil {
		return nil, err
	}
	return &value.Property{Name: name, Value: v, InstanceAnnotations: c.CustomAnnotationsFor(name)}, nil
}

// readDynamicValue reads a value whose type comes only from the payload.
func (d *Deserializer) readDynamicValue(ctx context.Context, payloadTypeName string, rc readContext) (any, error) {
	t, err := d.resolveDynamicType(ctx, payloadTypeName)
	if err != nil {
		return nil, withPropertyName(err, rc.propertyName)
	}
	if isGenericUntyped(t) {
		return d.readUntypedValue(ctx, false, "")
	}
	rc.dynamic = true
	return d.readNonEntityValue(ctx, payloadTypeName, t, nil, nil, rc)
}

// resolveDynamicType resolves the type of an undeclared value: a payload
// name known to the model wins, otherwise the untyped rules apply.
func (d *Deserializer) resolveDynamicType(ctx context.Context, payloadTypeName string) (*edm.TypeReference, error) {
	if payloadTypeName == "" {
		name, err := d.peekPayloadTypeName(ctx)
		if err != nil {
			return nil, err
		}
		payloadTypeName = name
	}
	if payloadTypeName != "" {
		t, err := d.resolveTypeName(nil, payloadTypeName, "")
		if err != nil {
			return nil, err
		}
		if t != nil {
			return edm.NewTypeReference(t, true), nil
		}
	}
	var raw any
	if d.r.NodeKind() == jsonsource.PrimitiveValue {
		raw = d.r.Value()
	}
	return ResolveUntypedType(UntypedInput{
		PayloadTypeName:       payloadTypeName,
		Node:                  d.r.NodeKind(),
		Raw:                   raw,
		Guesser:               d.s.PrimitiveTypeGuesser,
		ReadUntypedAsString:   d.s.ReadUntypedAsString,
		GenerateTypeIfMissing: d.s.AllowTypeConflicts,
	})
}

// peekPayloadTypeName looks for a leading "@odata.type" in the object the
// reader is on, without consuming anything.
func (d *Deserializer) peekPayloadTypeName(ctx context.Context) (name string, err error) {
	if d.r.NodeKind() != jsonsource.StartObject || d.r.IsBuffering() {
		return "", nil
	}
	if err := wrapSourceError(d.r.StartBuffering(ctx)); err != nil {
		return "", err
	}
	defer func() {
		if stopErr := wrapSourceError(d.r.StopBuffering(ctx)); err == nil {
			err = stopErr
		}
	}()
	if err := d.read(ctx); err != nil {
		return "", err
	}
	name, _, err = d.tryReadTypeAnnotation(ctx)
	return name, err
}

func resourceTypeName(st *edm.StructuredType, payloadTypeName string) string {
	switch {
	case st != nil && !st.IsUntyped():
		return st.FullName()
	case payloadTypeName != "":
		return payloadTypeName
	case st != nil:
		return st.FullName()
	}
	return ""
}

func collectionTypeName(t *edm.TypeReference, payloadTypeName string) string {
	if t != nil && t.ElementType() != nil && !isAnonymous(t.ElementType()) {
		return t.FullName()
	}
	if payloadTypeName != "" {
		return payloadTypeName
	}
	if t != nil {
		return t.FullName()
	}
	return ""
}

func isAnonymous(t *edm.TypeReference) bool {
	st := t.Structured()
	return st != nil && st.IsUntyped() && st.Name == ""
}

// typeAnnotation records where the type of a value came from.
func typeAnnotation(payloadTypeName string, t *edm.TypeReference) *value.TypeAnnotation {
	if payloadTypeName != "" {
		return &value.TypeAnnotation{TypeName: payloadTypeName, FromPayload: true}
	}
	if t != nil && !t.IsUntyped() {
		return &value.TypeAnnotation{TypeName: t.FullName()}
	}
	return nil
}

func itemTypeName(item any, t *edm.TypeReference, payloadTypeName string) string {
	if payloadTypeName != "" {
		return payloadTypeName
	}
	if t != nil && !isAnonymous(t) && !isGenericUntyped(t) {
		return t.FullName()
	}
	switch v := item.(type) {
	case *value.ResourceValue:
		return v.TypeName
	case int32:
		return "Edm.Int32"
	case float64:
		return "Edm.Double"
	case string:
		return "Edm.String"
	case bool:
		return "Edm.Boolean"
	}
	return ""
}

// collectionValidator checks that the items of a collection without a
// declared element type agree with each other and with the collection's
// payload type name. Nulls are not checked.
type collectionValidator struct {
	kind     edm.TypeKind
	typeName string
}

func newCollectionValidator(itemTypeName string) *collectionValidator {
	return &collectionValidator{typeName: itemTypeName}
}

var numericFamily = map[string]bool{
	"Edm.Byte": true, "Edm.SByte": true, "Edm.Int16": true, "Edm.Int32": true, "Edm.Int64": true,
	"Edm.Single": true, "Edm.Double": true, "Edm.Decimal": true,
}

func sameItemType(a, b string) bool {
	return a == b || (numericFamily[a] && numericFamily[b])
}

func (v *collectionValidator) validate(kind edm.TypeKind, typeName string) error {
	if kind == edm.KindUntyped {
		return nil
	}
	if v.kind == edm.KindNone {
		v.kind = kind
	} else if kind != v.kind {
		return newError(CodeCollectionItemMismatch, "collection item of kind %s does not match earlier items of kind %s", kind, v.kind).
			withTypes(v.kind.String(), kind.String())
	}
	if typeName == "" {
		return nil
	}
	if v.typeName == "" {
		v.typeName = typeName
		return nil
	}
	if !sameItemType(v.typeName, typeName) {
		return newError(CodeCollectionItemMismatch, "collection item of type %s does not match %s", typeName, v.typeName).
			withTypes(v.typeName, typeName)
	}
	return nil
}
