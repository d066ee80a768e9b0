package deserializer

import (
	"context"
	"net/url"
	"testing"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
	"github.com/nlstn/go-odata-reader/internal/metadata"
)

type testTypes struct {
	model    *edm.Model
	address  *edm.StructuredType
	person   *edm.StructuredType
	employee *edm.StructuredType
	bag      *edm.StructuredType
	node     *edm.StructuredType
	color    *edm.EnumType
}

func newTestTypes() *testTypes {
	m := edm.NewModel()

	address := edm.NewComplexType("NS", "Address")
	address.AddStructuralProperty("Street", edm.PrimitiveRef(edm.PrimitiveString, true))
	address.AddStructuralProperty("Zip", edm.PrimitiveRef(edm.PrimitiveInt32, false))

	color := edm.NewEnumType("NS", "Color",
		edm.EnumMember{Name: "Red", Value: 0},
		edm.EnumMember{Name: "Blue", Value: 1})

	person := edm.NewEntityType("NS", "Person")
	person.Keys = []string{"ID"}
	person.AddStructuralProperty("ID", edm.PrimitiveRef(edm.PrimitiveInt64, false))
	person.AddStructuralProperty("Name", edm.PrimitiveRef(edm.PrimitiveString, true))
	person.AddStructuralProperty("Age", edm.PrimitiveRef(edm.PrimitiveInt32, true))
	person.AddStructuralProperty("Color", edm.NewTypeReference(color, true))
	person.AddStructuralProperty("Address", edm.NewTypeReference(address, true))
	person.AddStructuralProperty("Tags", edm.CollectionRef(edm.PrimitiveRef(edm.PrimitiveString, true)))
	person.AddStructuralProperty("Photo", edm.PrimitiveRef(edm.PrimitiveStream, true))
	person.AddStructuralProperty("Location", edm.PrimitiveRef(edm.PrimitiveGeographyPoint, true))
	person.AddNavigationProperty("Friends", person, true, false)
	person.AddNavigationProperty("BestFriend", person, false, true)

	employee := edm.NewEntityType("NS", "Employee")
	employee.BaseType = person
	employee.AddStructuralProperty("Salary", edm.PrimitiveRef(edm.PrimitiveDecimal, true))

	bag := edm.NewComplexType("NS", "Bag")
	bag.Open = true

	node := edm.NewComplexType("NS", "Node")
	node.AddStructuralProperty("Value", edm.PrimitiveRef(edm.PrimitiveInt32, true))
	node.AddStructuralProperty("Child", edm.NewTypeReference(node, true))

	for _, t := range []edm.Type{address, color, person, employee, bag, node} {
		m.MustAddType(t)
	}
	m.AddTerm("NS.Rating", edm.PrimitiveRef(edm.PrimitiveInt32, true))

	return &testTypes{model: m, address: address, person: person, employee: employee, bag: bag, node: node, color: color}
}

func newTestDeserializer(payload string, model *edm.Model, s Settings) *Deserializer {
	return New(jsonsource.NewStringReader(payload), metadata.NewProvider(model), s)
}

// readTestValue reads a bare JSON value as a property value.
func readTestValue(t *testing.T, payload string, model *edm.Model, expected *edm.TypeReference, s Settings) (any, *Deserializer, error) {
	t.Helper()
	d := newTestDeserializer(payload, model, s)
	if err := d.read(context.Background()); err != nil {
		t.Fatalf("read() error = %v", err)
	}
	v, err := d.readNonEntityValue(context.Background(), "", expected, nil, nil, readContext{propertyName: "p", validateNull: true})
	return v, d, err
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want code %s", code)
	}
	if !HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", s, err)
	}
	return u
}
