package deserializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/spatial"
	"github.com/nlstn/go-odata-reader/internal/value"
)

func TestReadPrimitiveValues(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    edm.PrimitiveKind
		want    any
	}{
		{"int32", `42`, edm.PrimitiveInt32, int32(42)},
		{"int32 from string", `"42"`, edm.PrimitiveInt32, int32(42)},
		{"int16", `-7`, edm.PrimitiveInt16, int16(-7)},
		{"byte", `255`, edm.PrimitiveByte, uint8(255)},
		{"sbyte", `-128`, edm.PrimitiveSByte, int8(-128)},
		{"int64", `9007199254740993`, edm.PrimitiveInt64, int64(9007199254740993)},
		{"double", `1.5`, edm.PrimitiveDouble, 1.5},
		{"single", `2.5`, edm.PrimitiveSingle, float32(2.5)},
		{"string", `"hi"`, edm.PrimitiveString, "hi"},
		{"boolean", `true`, edm.PrimitiveBoolean, true},
		{"binary", `"aGVsbG8="`, edm.PrimitiveBinary, []byte("hello")},
		{"binary url alphabet", `"-_8"`, edm.PrimitiveBinary, []byte{0xfb, 0xff}},
		{"guid", `"3f2504e0-4f89-11d3-9a0c-0305e82c3301"`, edm.PrimitiveGuid, uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := readTestValue(t, tt.payload, nil, edm.PrimitiveRef(tt.kind, true), Settings{})
			if err != nil {
				t.Fatalf("readNonEntityValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("readNonEntityValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReadDecimal(t *testing.T) {
	got, _, err := readTestValue(t, `12.345`, nil, edm.PrimitiveRef(edm.PrimitiveDecimal, true), Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	d, ok := got.(decimal.Decimal)
	if !ok || !d.Equal(decimal.RequireFromString("12.345")) {
		t.Errorf("readNonEntityValue() = %v, want 12.345", got)
	}
}

func TestReadPrimitiveErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    edm.PrimitiveKind
		code    Code
	}{
		{"overflow", `70000`, edm.PrimitiveInt16, CodeInvalidPrimitiveValue},
		{"bool as number", `true`, edm.PrimitiveInt32, CodeInvalidPrimitiveValue},
		{"number as string type", `1`, edm.PrimitiveString, CodeInvalidPrimitiveValue},
		{"object for primitive", `{"a":1}`, edm.PrimitiveInt32, CodePrimitiveExpected},
		{"array for primitive", `[1]`, edm.PrimitiveInt32, CodePrimitiveExpected},
		{"bad guid", `"nope"`, edm.PrimitiveGuid, CodeInvalidPrimitiveValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d, err := readTestValue(t, tt.payload, nil, edm.PrimitiveRef(tt.kind, true), Settings{})
			wantCode(t, err, tt.code)
			if d.Depth() != 0 {
				t.Errorf("Depth() = %d after failed read, want 0", d.Depth())
			}
		})
	}
}

func TestIEEE754Compatible(t *testing.T) {
	int64Ref := edm.PrimitiveRef(edm.PrimitiveInt64, true)
	s := Settings{IEEE754Compatible: true}

	_, _, err := readTestValue(t, `9007199254740993`, nil, int64Ref, s)
	wantCode(t, err, CodeNumericEncoding)

	got, _, err := readTestValue(t, `"9007199254740993"`, nil, int64Ref, s)
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	if got != int64(9007199254740993) {
		t.Errorf("readNonEntityValue() = %v, want 9007199254740993", got)
	}

	_, _, err = readTestValue(t, `"5"`, nil, int64Ref, Settings{})
	wantCode(t, err, CodeNumericEncoding)
}

func TestIEEE754SkippedForDynamicValues(t *testing.T) {
	tt := newTestTypes()
	payload := `{"Extra":12.5}`
	d := newTestDeserializer(payload, tt.model, Settings{IEEE754Compatible: true})
	v, err := d.ReadProperty(context.Background(), edm.NewTypeReference(tt.bag, true))
	if err != nil {
		t.Fatalf("ReadProperty() error = %v", err)
	}
	rv := v.Value.(*value.ResourceValue)
	got, ok := rv.Property("Extra").Value.(decimal.Decimal)
	if !ok || !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Extra = %#v, want decimal 12.5", rv.Property("Extra").Value)
	}
}

func TestReadUntypedNumberDefaults(t *testing.T) {
	got, _, err := readTestValue(t, `[1, 3000000000, 1.25]`, nil, nil, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	cv := got.(*value.CollectionValue)
	want := []any{int32(1), float64(3000000000), 1.25}
	if !reflect.DeepEqual(cv.Items, want) {
		t.Errorf("Items = %#v, want %#v", cv.Items, want)
	}
}

func TestCollectionNullability(t *testing.T) {
	payload := `[1,"2",null]`
	nullable := edm.CollectionRef(edm.PrimitiveRef(edm.PrimitiveInt32, true))
	got, _, err := readTestValue(t, payload, nil, nullable, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	cv := got.(*value.CollectionValue)
	want := []any{int32(1), int32(2), nil}
	if !reflect.DeepEqual(cv.Items, want) {
		t.Errorf("Items = %#v, want %#v", cv.Items, want)
	}
	if cv.TypeName != "Collection(Edm.Int32)" {
		t.Errorf("TypeName = %q, want Collection(Edm.Int32)", cv.TypeName)
	}

	nonNullable := edm.CollectionRef(edm.PrimitiveRef(edm.PrimitiveInt32, false))
	_, d, err := readTestValue(t, payload, nil, nonNullable, Settings{})
	wantCode(t, err, CodeNullValueNotAllowed)
	var e *Error
	if errors.As(err, &e) && e.Actual != "null" {
		t.Errorf("Error.Actual = %q, want null", e.Actual)
	}
	if d.Depth() != 0 {
		t.Errorf("Depth() = %d after failed read, want 0", d.Depth())
	}
}

func TestCollectionItemValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		code    Code
	}{
		{"primitive and object", `[1, {"a":1}]`, CodeCollectionItemMismatch},
		{"numbers mix", `[1, 2.5, null]`, ""},
		{"typed objects differ", `[{"@odata.type":"#NS.A"}, {"@odata.type":"#NS.B"}]`, CodeCollectionItemMismatch},
		{"nested collection", `[[1]]`, CodeNestedCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readTestValue(t, tt.payload, nil, nil, Settings{})
			if tt.code == "" {
				if err != nil {
					t.Errorf("readNonEntityValue() error = %v, want nil", err)
				}
				return
			}
			wantCode(t, err, tt.code)
		})
	}
}

func TestReadEnum(t *testing.T) {
	tt := newTestTypes()
	ref := edm.NewTypeReference(tt.color, true)
	got, _, err := readTestValue(t, `"Blue"`, tt.model, ref, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	want := &value.EnumValue{Value: "Blue", TypeName: "NS.Color"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("readNonEntityValue() = %#v, want %#v", got, want)
	}

	_, _, err = readTestValue(t, `1`, tt.model, ref, Settings{})
	wantCode(t, err, CodeEnumNotString)
}

func TestReadTypeDefinition(t *testing.T) {
	def := edm.NewTypeDefinition("NS", "UInt16", edm.PrimitiveInt32)
	ref := edm.NewTypeReference(def, true)

	got, _, err := readTestValue(t, `65535`, nil, ref, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	if got != uint16(65535) {
		t.Errorf("readNonEntityValue() = %#v, want uint16(65535)", got)
	}

	_, _, err = readTestValue(t, `65536`, nil, ref, Settings{})
	wantCode(t, err, CodeTypeDefinitionOverflow)
}

func TestReadComplexValue(t *testing.T) {
	tt := newTestTypes()
	ref := edm.NewTypeReference(tt.address, true)
	got, _, err := readTestValue(t, `{"Street":"Main","Zip":12345}`, tt.model, ref, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	rv := got.(*value.ResourceValue)
	if rv.TypeName != "NS.Address" {
		t.Errorf("TypeName = %q, want NS.Address", rv.TypeName)
	}
	if rv.TypeAnnotation == nil || rv.TypeAnnotation.FromPayload {
		t.Errorf("TypeAnnotation = %+v, want computed from metadata", rv.TypeAnnotation)
	}
	if got := rv.Property("Zip").Value; got != int32(12345) {
		t.Errorf("Zip = %#v, want 12345", got)
	}

	_, _, err = readTestValue(t, `{"Street":"Main","Zip":null}`, tt.model, ref, Settings{})
	wantCode(t, err, CodeNullValueNotAllowed)

	_, _, err = readTestValue(t, `{"Street":"Main","Unknown":1}`, tt.model, ref, Settings{})
	wantCode(t, err, CodeUndeclaredProperty)

	got, _, err = readTestValue(t, `{"Street":"Main","Unknown":1}`, tt.model, ref, Settings{AllowUndeclaredProperties: true})
	if err != nil {
		t.Fatalf("readNonEntityValue() with AllowUndeclaredProperties error = %v", err)
	}
	if p := got.(*value.ResourceValue).Property("Unknown"); p == nil {
		t.Errorf("Property(Unknown) = nil, want dynamic value")
	}
}

func TestDynamicPropertyUsesInnerTypeAnnotation(t *testing.T) {
	tt := newTestTypes()
	payload := `{"Extra":{"@odata.type":"#NS.Address","Street":"x","Zip":1},"Plain":{"a":1}}`
	d := newTestDeserializer(payload, tt.model, Settings{})
	prop, err := d.ReadProperty(context.Background(), edm.NewTypeReference(tt.bag, true))
	if err != nil {
		t.Fatalf("ReadProperty() error = %v", err)
	}
	bag := prop.Value.(*value.ResourceValue)
	extra := bag.Property("Extra").Value.(*value.ResourceValue)
	if extra.TypeName != "NS.Address" {
		t.Errorf("TypeName = %q, want NS.Address", extra.TypeName)
	}
	if extra.TypeAnnotation == nil || !extra.TypeAnnotation.FromPayload {
		t.Errorf("TypeAnnotation = %+v, want from payload", extra.TypeAnnotation)
	}
	if got := extra.Property("Zip").Value; got != int32(1) {
		t.Errorf("Zip = %#v, want int32(1)", got)
	}
	if _, ok := bag.Property("Plain").Value.(*value.ResourceValue); !ok {
		t.Errorf("Plain = %T, want *value.ResourceValue", bag.Property("Plain").Value)
	}
}

func TestReadSpatialValue(t *testing.T) {
	ref := edm.PrimitiveRef(edm.PrimitiveGeographyPoint, true)
	got, _, err := readTestValue(t, `{"type":"Point","coordinates":[1.5,2.5]}`, nil, ref, Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	v := got.(*spatial.Value)
	if v.Kind != edm.PrimitiveGeographyPoint || !reflect.DeepEqual(v.Coordinates, spatial.Position{1.5, 2.5}) {
		t.Errorf("readNonEntityValue() = %+v, want Point(1.5 2.5)", v)
	}

	_, _, err = readTestValue(t, `{"type":"LineString","coordinates":[[1,2],[3,4]]}`, nil, ref, Settings{})
	wantCode(t, err, CodeIncompatibleType)
}

func TestUntypedValueRendering(t *testing.T) {
	got, _, err := readTestValue(t, `{"a":[1,"x\"y",null,{"b":true}]}`, nil, edm.UntypedRef(), Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	want := `{"a":[1,"x\"y",null,{"b":true}]}`
	if raw := got.(*value.UntypedValue).RawValue; raw != want {
		t.Errorf("RawValue = %s, want %s", raw, want)
	}
}

func TestUntypedObjectWithUnknownType(t *testing.T) {
	got, _, err := readTestValue(t, `{"@odata.type":"#NS.Unknown","a":1}`, nil, edm.UntypedRef(), Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue() error = %v", err)
	}
	rv, ok := got.(*value.ResourceValue)
	if !ok {
		t.Fatalf("readNonEntityValue() = %T, want *value.ResourceValue", got)
	}
	if rv.TypeName != "NS.Unknown" {
		t.Errorf("TypeName = %q, want NS.Unknown", rv.TypeName)
	}
	p := rv.Property("a")
	if p == nil {
		t.Fatalf("Property(a) = nil, want a dynamic value")
	}
	// numbers without a type resolve to Edm.Decimal
	if n, ok := p.Value.(decimal.Decimal); !ok || !n.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Property(a) = %#v, want decimal 1", p.Value)
	}
}

func TestDuplicatePropertyInValue(t *testing.T) {
	tt := newTestTypes()
	ref := edm.NewTypeReference(tt.address, true)
	_, _, err := readTestValue(t, `{"Street":"a","Street":"b","Zip":1}`, tt.model, ref, Settings{})
	wantCode(t, err, CodeDuplicateProperty)

	_, _, err = readTestValue(t, `{"Street@odata.type":"#String","Street@odata.type":"#String","Street":"a","Zip":1}`, tt.model, ref, Settings{})
	wantCode(t, err, CodeDuplicateProperty)
}

// encodeResourceValue writes a resource value back to JSON for round trips.
func encodeResourceValue(buf *bytes.Buffer, rv *value.ResourceValue) {
	buf.WriteByte('{')
	for i, p := range rv.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, p.Name)
		buf.WriteByte(':')
		encodeValue(buf, p.Value)
	}
	buf.WriteByte('}')
}

func encodeValue(buf *bytes.Buffer, v any) {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeJSONString(buf, v)
	case *value.EnumValue:
		writeJSONString(buf, v.Value)
	case *value.ResourceValue:
		encodeResourceValue(buf, v)
	case *value.CollectionValue:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeValue(buf, item)
		}
		buf.WriteByte(']')
	default:
		fmt.Fprint(buf, v)
	}
}

func TestResourceValueRoundTrip(t *testing.T) {
	tt := newTestTypes()
	profile := edm.NewComplexType("NS", "Profile")
	profile.AddStructuralProperty("Nick", edm.PrimitiveRef(edm.PrimitiveString, true))
	profile.AddStructuralProperty("Color", edm.NewTypeReference(tt.color, true))
	profile.AddStructuralProperty("Home", edm.NewTypeReference(tt.address, true))
	profile.AddStructuralProperty("Lucky", edm.CollectionRef(edm.PrimitiveRef(edm.PrimitiveInt32, false)))
	tt.model.MustAddType(profile)

	original := &value.ResourceValue{
		TypeName: "NS.Profile",
		Properties: []*value.Property{
			{Name: "Nick", Value: "neo"},
			{Name: "Color", Value: &value.EnumValue{Value: "Red", TypeName: "NS.Color"}},
			{Name: "Home", Value: &value.ResourceValue{TypeName: "NS.Address", Properties: []*value.Property{
				{Name: "Street", Value: "Main"},
				{Name: "Zip", Value: int32(7)},
			}}},
			{Name: "Lucky", Value: &value.CollectionValue{TypeName: "Collection(Edm.Int32)", Items: []any{int32(3), int32(7)}}},
		},
	}
	var buf bytes.Buffer
	encodeResourceValue(&buf, original)

	got, _, err := readTestValue(t, buf.String(), tt.model, edm.NewTypeReference(profile, true), Settings{})
	if err != nil {
		t.Fatalf("readNonEntityValue(%s) error = %v", buf.String(), err)
	}
	rv := got.(*value.ResourceValue)
	if len(rv.Properties) != len(original.Properties) {
		t.Fatalf("len(Properties) = %d, want %d", len(rv.Properties), len(original.Properties))
	}
	for i, p := range original.Properties {
		gotProp := rv.Properties[i]
		if gotProp.Name != p.Name {
			t.Errorf("Properties[%d].Name = %q, want %q", i, gotProp.Name, p.Name)
		}
		var want, have bytes.Buffer
		encodeValue(&want, p.Value)
		encodeValue(&have, gotProp.Value)
		if want.String() != have.String() {
			t.Errorf("Properties[%d] = %s, want %s", i, have.String(), want.String())
		}
	}
	home := rv.Property("Home").Value.(*value.ResourceValue)
	if home.TypeName != "NS.Address" {
		t.Errorf("Home.TypeName = %q, want NS.Address", home.TypeName)
	}
	if c := rv.Property("Color").Value.(*value.EnumValue); c.TypeName != "NS.Color" {
		t.Errorf("Color.TypeName = %q, want NS.Color", c.TypeName)
	}
}
