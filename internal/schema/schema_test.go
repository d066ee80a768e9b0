package schema

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nlstn/go-odata-reader/internal/edm"
)

const salesYAML = `
namespace: Sales.Model
alias: Self
enumTypes:
  - name: Color
    members:
      - {name: Red, value: 0}
      - {name: Blue, value: 1}
typeDefinitions:
  - name: Code
    underlyingType: String
complexTypes:
  - name: Address
    properties:
      - {name: Street, type: String}
      - {name: Zip, type: Code, nullable: false}
entityTypes:
  - name: Person
    key: [ID]
    properties:
      - {name: ID, type: Int32, nullable: false}
      - {name: Address, type: Address}
      - {name: Favorite, type: Color}
      - {name: Tags, type: Collection(String)}
    navigationProperties:
      - {name: Friends, type: Collection(Person), partner: Friends}
      - {name: Manager, type: Self.Person}
  - name: Employee
    baseType: Person
    properties:
      - {name: Salary, type: Decimal}
terms:
  - {name: Note, type: String}
`

const salesJSONC = `{
  // same namespace, authored by hand
  "namespace": "Sales.Model",
  "complexTypes": [
    {
      "name": "Address",
      "properties": [
        {"name": "Street", "type": "Edm.String"}, /* trailing comma below */
      ],
    },
  ],
}`

func TestParseYAMLAndBuild(t *testing.T) {
	doc, err := Parse([]byte(salesYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	m, err := doc.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	employee := m.FindStructuredType("Sales.Model.Employee")
	if employee == nil || employee.BaseType == nil || employee.BaseType.FullName() != "Sales.Model.Person" {
		t.Fatalf("Employee = %v, want base Sales.Model.Person", employee)
	}
	if employee.FindProperty("ID") == nil {
		t.Error("Employee does not inherit ID")
	}

	person := m.FindStructuredType("Self.Person")
	tests := []struct {
		name     string
		wantType string
		nullable bool
		nav      bool
	}{
		{"ID", "Edm.Int32", false, false},
		{"Address", "Sales.Model.Address", true, false},
		{"Favorite", "Sales.Model.Color", true, false},
		{"Tags", "Collection(Edm.String)", true, false},
		{"Friends", "Collection(Sales.Model.Person)", false, true},
		{"Manager", "Sales.Model.Person", true, true},
	}
	for _, tt := range tests {
		p := person.FindProperty(tt.name)
		if p == nil {
			t.Errorf("FindProperty(%q) = nil", tt.name)
			continue
		}
		if p.Type.FullName() != tt.wantType || p.Type.Nullable() != tt.nullable || p.IsNavigation() != tt.nav {
			t.Errorf("%s = %s (nullable %v, nav %v), want %s (nullable %v, nav %v)",
				tt.name, p.Type.FullName(), p.Type.Nullable(), p.IsNavigation(), tt.wantType, tt.nullable, tt.nav)
		}
	}
	if partner := person.FindProperty("Friends").Partner; partner != "Friends" {
		t.Errorf("Friends.Partner = %q, want Friends", partner)
	}

	zip := m.FindStructuredType("Sales.Model.Address").FindProperty("Zip")
	if zip.Type.TypeDefinition() == nil || zip.Type.Nullable() {
		t.Errorf("Zip = %s (nullable %v), want non-nullable type definition", zip.Type.FullName(), zip.Type.Nullable())
	}
	if term := m.FindTerm("Self.Note"); term.FullName() != "Edm.String" {
		t.Errorf("FindTerm(Self.Note) = %v, want Edm.String", term)
	}
}

func TestParseJSONC(t *testing.T) {
	doc, err := Parse([]byte(salesJSONC), FormatJSONC)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.ComplexTypes) != 1 || len(doc.ComplexTypes[0].Properties) != 1 {
		t.Fatalf("Parse() = %+v, want one complex type with one property", doc)
	}
	m, err := doc.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.FindStructuredType("Sales.Model.Address") == nil {
		t.Error("FindStructuredType(Sales.Model.Address) = nil")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(salesYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	data, err := EncodeCBOR(doc)
	if err != nil {
		t.Fatalf("EncodeCBOR() error = %v", err)
	}
	again, err := EncodeCBOR(doc)
	if err != nil || !bytes.Equal(data, again) {
		t.Errorf("EncodeCBOR() is not deterministic")
	}
	got, err := Parse(data, FormatCBOR)
	if err != nil {
		t.Fatalf("Parse(cbor) error = %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("Parse(EncodeCBOR(doc)) = %+v, want %+v", got, doc)
	}
}

func TestFromModel(t *testing.T) {
	doc, err := Parse([]byte(salesYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	m, err := doc.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	exported := FromModel(m, "Sales.Model")
	rebuilt, err := exported.Build()
	if err != nil {
		t.Fatalf("Build(FromModel()) error = %v", err)
	}
	for _, typ := range m.Types() {
		if rebuilt.FindType(typ.FullName()) == nil {
			t.Errorf("rebuilt model misses %s", typ.FullName())
		}
	}
	if rebuilt.FindTerm("Sales.Model.Note") == nil {
		t.Error("rebuilt model misses term Sales.Model.Note")
	}

	first, err := EncodeCBOR(exported)
	if err != nil {
		t.Fatalf("EncodeCBOR() error = %v", err)
	}
	second, err := EncodeCBOR(FromModel(rebuilt, "Sales.Model"))
	if err != nil {
		t.Fatalf("EncodeCBOR() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("FromModel() of the rebuilt model differs from the first export")
	}
}

func TestEncodeYAML(t *testing.T) {
	doc, err := Parse([]byte(salesYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeYAML(&buf, doc); err != nil {
		t.Fatalf("EncodeYAML() error = %v", err)
	}
	got, err := Parse(buf.Bytes(), FormatYAML)
	if err != nil {
		t.Fatalf("Parse(EncodeYAML()) error = %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("Parse(EncodeYAML(doc)) = %+v, want %+v", got, doc)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sales.yaml")
	jsoncPath := filepath.Join(dir, "sales.jsonc")
	if err := os.WriteFile(yamlPath, []byte(salesYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jsoncPath, []byte(salesJSONC), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{yamlPath, jsoncPath} {
		doc, err := ReadFile(path)
		if err != nil {
			t.Errorf("ReadFile(%s) error = %v", filepath.Base(path), err)
			continue
		}
		if doc.Namespace != "Sales.Model" {
			t.Errorf("ReadFile(%s).Namespace = %q", filepath.Base(path), doc.Namespace)
		}
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("ReadFile(missing) error = nil, want error")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":  FormatYAML,
		"a.YML":   FormatYAML,
		"a.cbor":  FormatCBOR,
		"a.json":  FormatJSONC,
		"a.jsonc": FormatJSONC,
		"a":       FormatJSONC,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		wantErr string
	}{
		{"unknown yaml field", "namespace: NS\nentityTypez: []\n", FormatYAML, "entityTypez"},
		{"empty yaml", "", FormatYAML, "empty document"},
		{"unknown json field", `{"namespace":"NS","extra":1}`, FormatJSONC, "extra"},
		{"missing namespace", `{"complexTypes":[{"name":"A"}]}`, FormatJSONC, "namespace is required"},
		{"duplicate type", `{"namespace":"NS","complexTypes":[{"name":"A"},{"name":"A"}]}`, FormatJSONC, "more than once"},
		{"unknown format", `{}`, Format("xml"), "unknown format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr string
	}{
		{
			name:    "unknown property type",
			doc:     Document{Namespace: "NS", ComplexTypes: []StructuredType{{Name: "A", Properties: []Property{{Name: "P", Type: "B"}}}}},
			wantErr: `unknown type "B"`,
		},
		{
			name:    "entity without key",
			doc:     Document{Namespace: "NS", EntityTypes: []StructuredType{{Name: "E"}}},
			wantErr: "needs a key",
		},
		{
			name:    "key not a property",
			doc:     Document{Namespace: "NS", EntityTypes: []StructuredType{{Name: "E", Key: []string{"ID"}}}},
			wantErr: "not a structural property",
		},
		{
			name: "base kind mismatch",
			doc: Document{
				Namespace:    "NS",
				ComplexTypes: []StructuredType{{Name: "C"}},
				EntityTypes:  []StructuredType{{Name: "E", BaseType: "C"}},
			},
			wantErr: "must be a Entity type",
		},
		{
			name: "base cycle",
			doc: Document{
				Namespace:    "NS",
				ComplexTypes: []StructuredType{{Name: "A", BaseType: "B"}, {Name: "B", BaseType: "A"}},
			},
			wantErr: "cycle",
		},
		{
			name: "navigation to complex",
			doc: Document{
				Namespace:    "NS",
				ComplexTypes: []StructuredType{{Name: "C"}},
				EntityTypes: []StructuredType{{
					Name:                 "E",
					Key:                  []string{"ID"},
					Properties:           []Property{{Name: "ID", Type: "Int32"}},
					NavigationProperties: []NavigationProperty{{Name: "C", Type: "C"}},
				}},
			},
			wantErr: "not an entity type",
		},
		{
			name: "structural entity property",
			doc: Document{
				Namespace: "NS",
				EntityTypes: []StructuredType{{
					Name:       "E",
					Key:        []string{"ID"},
					Properties: []Property{{Name: "ID", Type: "Int32"}, {Name: "Self", Type: "E"}},
				}},
			},
			wantErr: "declare a navigation property",
		},
		{
			name:    "enum over string",
			doc:     Document{Namespace: "NS", EnumTypes: []EnumType{{Name: "E", UnderlyingType: "String", Members: []EnumMember{{Name: "A"}}}}},
			wantErr: "integer underlying type",
		},
		{
			name:    "type definition without underlying type",
			doc:     Document{Namespace: "NS", TypeDefinitions: []TypeDefinition{{Name: "T"}}},
			wantErr: "needs an underlying type",
		},
		{
			name:    "duplicate enum member",
			doc:     Document{Namespace: "NS", EnumTypes: []EnumType{{Name: "E", Members: []EnumMember{{Name: "A"}, {Name: "A", Value: 1}}}}},
			wantErr: "duplicate member",
		},
		{
			name:    "unknown term type",
			doc:     Document{Namespace: "NS", Terms: []Term{{Name: "T", Type: "NS.Missing"}}},
			wantErr: "term T",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.doc.Build()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Build() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildIntoExistingModel(t *testing.T) {
	m := edm.NewModel()
	m.MustAddType(edm.NewComplexType("Common", "Money"))
	doc := Document{
		Namespace:    "Sales",
		ComplexTypes: []StructuredType{{Name: "Line", Properties: []Property{{Name: "Price", Type: "Common.Money"}}}},
	}
	if err := doc.BuildInto(m); err != nil {
		t.Fatalf("BuildInto() error = %v", err)
	}
	if got := m.FindStructuredType("Sales.Line").FindProperty("Price").Type.FullName(); got != "Common.Money" {
		t.Errorf("Price type = %s, want Common.Money", got)
	}
	if err := doc.BuildInto(m); err == nil {
		t.Error("BuildInto() twice error = nil, want duplicate type error")
	}
}
