package deserializer

import (
	"testing"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

func TestResolveUntypedType(t *testing.T) {
	int32Ref := edm.PrimitiveRef(edm.PrimitiveInt32, true)
	tests := []struct {
		name     string
		in       UntypedInput
		wantName string
		wantKind edm.TypeKind
		wantCode Code
	}{
		{"expected wins", UntypedInput{Expected: int32Ref, Node: jsonsource.PrimitiveValue, Raw: "x"}, "Edm.Int32", edm.KindPrimitive, ""},
		{"as string", UntypedInput{ReadUntypedAsString: true, Node: jsonsource.PrimitiveValue, Raw: "x"}, "Edm.Untyped", edm.KindUntyped, ""},
		{"as string keeps booleans", UntypedInput{ReadUntypedAsString: true, Node: jsonsource.PrimitiveValue, Raw: true}, "Edm.Boolean", edm.KindPrimitive, ""},
		{"number", UntypedInput{Node: jsonsource.PrimitiveValue, Raw: jsonsource.Number("1.5")}, "Edm.Decimal", edm.KindPrimitive, ""},
		{"string", UntypedInput{Node: jsonsource.PrimitiveValue, Raw: "x"}, "Edm.String", edm.KindPrimitive, ""},
		{"null", UntypedInput{Node: jsonsource.PrimitiveValue}, "Edm.String", edm.KindPrimitive, ""},
		{"null with collection name", UntypedInput{Node: jsonsource.PrimitiveValue, PayloadTypeName: "Collection(Edm.Int32)"}, "Collection(Edm.Int32)", edm.KindCollection, ""},
		{"named primitive", UntypedInput{Node: jsonsource.PrimitiveValue, Raw: "x", PayloadTypeName: "Edm.Guid"}, "Edm.Guid", edm.KindPrimitive, ""},
		{"unknown primitive name", UntypedInput{Node: jsonsource.PrimitiveValue, Raw: "x", PayloadTypeName: "NS.Code"}, "NS.Code", edm.KindTypeDefinition, ""},
		{"collection name on primitive", UntypedInput{Node: jsonsource.PrimitiveValue, Raw: "x", PayloadTypeName: "Collection(NS.X)"}, "", edm.KindNone, CodeCollectionTypeName},
		{"object", UntypedInput{Node: jsonsource.StartObject}, "Edm.Untyped", edm.KindComplex, ""},
		{"object named without generation", UntypedInput{Node: jsonsource.StartObject, PayloadTypeName: "NS.Foo"}, "Edm.Untyped", edm.KindComplex, ""},
		{"object named", UntypedInput{Node: jsonsource.StartObject, PayloadTypeName: "NS.Foo", GenerateTypeIfMissing: true}, "NS.Foo", edm.KindComplex, ""},
		{"object with collection name", UntypedInput{Node: jsonsource.StartObject, PayloadTypeName: "Collection(NS.Foo)", GenerateTypeIfMissing: true}, "", edm.KindNone, CodeCollectionTypeName},
		{"array", UntypedInput{Node: jsonsource.StartArray}, "Collection(Edm.Untyped)", edm.KindCollection, ""},
		{"array named", UntypedInput{Node: jsonsource.StartArray, PayloadTypeName: "Collection(NS.Foo)", GenerateTypeIfMissing: true}, "Collection(NS.Foo)", edm.KindCollection, ""},
		{"array with item name", UntypedInput{Node: jsonsource.StartArray, PayloadTypeName: "NS.Foo", GenerateTypeIfMissing: true}, "", edm.KindNone, CodeMissingCollectionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUntypedType(tt.in)
			if tt.wantCode != "" {
				wantCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("ResolveUntypedType() error = %v", err)
			}
			if got.FullName() != tt.wantName || got.Kind() != tt.wantKind {
				t.Errorf("ResolveUntypedType() = %s (%s), want %s (%s)", got.FullName(), got.Kind(), tt.wantName, tt.wantKind)
			}

			again, err := ResolveUntypedType(tt.in)
			if err != nil || again.FullName() != got.FullName() || again.Kind() != got.Kind() || again.Nullable() != got.Nullable() {
				t.Errorf("ResolveUntypedType() second call = %v, %v; want %s again", again.FullName(), err, got.FullName())
			}
		})
	}
}

func TestResolveUntypedTypeGuesser(t *testing.T) {
	guess := func(raw any, payloadTypeName string) *edm.TypeReference {
		if n, ok := raw.(jsonsource.Number); ok && n == "7" {
			return edm.PrimitiveRef(edm.PrimitiveInt64, true)
		}
		return nil
	}
	got, err := ResolveUntypedType(UntypedInput{Node: jsonsource.PrimitiveValue, Raw: jsonsource.Number("7"), Guesser: guess})
	if err != nil {
		t.Fatalf("ResolveUntypedType() error = %v", err)
	}
	if got.FullName() != "Edm.Int64" {
		t.Errorf("ResolveUntypedType() = %s, want Edm.Int64", got.FullName())
	}

	got, err = ResolveUntypedType(UntypedInput{Node: jsonsource.PrimitiveValue, Raw: jsonsource.Number("8"), Guesser: guess})
	if err != nil {
		t.Fatalf("ResolveUntypedType() error = %v", err)
	}
	if got.FullName() != "Edm.Decimal" {
		t.Errorf("ResolveUntypedType() fallback = %s, want Edm.Decimal", got.FullName())
	}
}
