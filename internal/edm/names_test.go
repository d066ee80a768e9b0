package edm

import "testing"

func TestCollectionItemTypeName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"Collection(Edm.String)", "Edm.String", true},
		{"Collection(Collection(NS.A))", "Collection(NS.A)", true},
		{"Collection()", "", false},
		{"Collection(NS.A", "", false},
		{"NS.A", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CollectionItemTypeName(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CollectionItemTypeName(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
		if IsCollectionTypeName(tt.name) != tt.wantOK {
			t.Errorf("IsCollectionTypeName(%q) = %v, want %v", tt.name, !tt.wantOK, tt.wantOK)
		}
	}
}

func TestNormalizeTypeName(t *testing.T) {
	tests := map[string]string{
		"#Int32":                      "Edm.Int32",
		"Edm.Int32":                   "Edm.Int32",
		"#NS.Customer":                "NS.Customer",
		"Collection(String)":          "Collection(Edm.String)",
		"#Collection(GeographyPoint)": "Collection(Edm.GeographyPoint)",
		"Untyped":                     "Edm.Untyped",
		"Customer":                    "Customer",
	}
	for in, want := range tests {
		if got := NormalizeTypeName(in); got != want {
			t.Errorf("NormalizeTypeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelFindType(t *testing.T) {
	m := NewModel()
	customer := NewEntityType("Sales.Model", "Customer")
	m.MustAddType(customer)
	m.AddAlias("Self", "Sales.Model")

	if got := m.FindType("Self.Customer"); got != customer {
		t.Errorf("FindType(alias) = %v, want %v", got, customer)
	}
	if got := m.FindType("Edm.Untyped"); got != Untyped {
		t.Errorf("FindType(Edm.Untyped) = %v, want Untyped", got)
	}
	coll, ok := m.FindType("Collection(Sales.Model.Customer)").(*CollectionType)
	if !ok || coll.Element.Definition() != customer {
		t.Errorf("FindType(collection) = %v, want Collection(Sales.Model.Customer)", coll)
	}
	if got := m.FindType("Collection(Sales.Model.Missing)"); got != nil {
		t.Errorf("FindType(unknown collection) = %v, want nil", got)
	}
	if err := m.AddType(customer); err == nil {
		t.Error("AddType() duplicate error = nil, want error")
	}
	if err := m.AddType(PrimitiveTypeOf(PrimitiveInt32)); err == nil {
		t.Error("AddType(primitive) error = nil, want error")
	}
}
