package edm

import (
	"fmt"
	"sort"
	"strings"
)

// TypeKind identifies the broad category of an EDM type.
type TypeKind int

const (
	KindNone TypeKind = iota
	KindPrimitive
	KindEnum
	KindComplex
	KindEntity
	KindCollection
	KindTypeDefinition
	KindUntyped
)

var typeKindNames = [...]string{
	KindNone:           "None",
	KindPrimitive:      "Primitive",
	KindEnum:           "Enum",
	KindComplex:        "Complex",
	KindEntity:         "Entity",
	KindCollection:     "Collection",
	KindTypeDefinition: "TypeDefinition",
	KindUntyped:        "Untyped",
}

func (k TypeKind) String() string {
	if k < 0 || int(k) >= len(typeKindNames) {
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
	return typeKindNames[k]
}

// IsStructured reports whether the kind is Complex or Entity.
func (k TypeKind) IsStructured() bool {
	return k == KindComplex || k == KindEntity
}

// Type is implemented by every EDM type definition.
type Type interface {
	Kind() TypeKind
	FullName() string
}

// EnumMember is a single named value of an enum type.
type EnumMember struct {
	Name  string
	Value int64
}

// EnumType describes an EDM enumeration.
type EnumType struct {
	Namespace  string
	Name       string
	Underlying PrimitiveKind // defaults to Int32 when left as PrimitiveNone
	IsFlags    bool
	Members    []EnumMember
}

// NewEnumType creates an enum type over Edm.Int32.
func NewEnumType(namespace, name string, members ...EnumMember) *EnumType {
	return &EnumType{Namespace: namespace, Name: name, Underlying: PrimitiveInt32, Members: members}
}

func (t *EnumType) Kind() TypeKind   { return KindEnum }
func (t *EnumType) FullName() string { return qualify(t.Namespace, t.Name) }

// Member returns the member with the given name.
func (t *EnumType) Member(name string) (EnumMember, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return EnumMember{}, false
}

// CollectionType is a collection over an element type reference.
type CollectionType struct {
	Element *TypeReference
}

// NewCollectionType creates a collection type for the given element.
func NewCollectionType(element *TypeReference) *CollectionType {
	return &CollectionType{Element: element}
}

func (t *CollectionType) Kind() TypeKind { return KindCollection }

func (t *CollectionType) FullName() string {
	return "Collection(" + t.Element.FullName() + ")"
}

// TypeDefinition narrows an underlying primitive type.
type TypeDefinition struct {
	Namespace  string
	Name       string
	Underlying *PrimitiveType
	// Converter maps values of the underlying type to the defined type.
	// When nil, DefaultConverter is used.
	Converter PrimitiveValueConverter
}

// NewTypeDefinition creates a type definition over the given primitive kind.
func NewTypeDefinition(namespace, name string, underlying PrimitiveKind) *TypeDefinition {
	return &TypeDefinition{Namespace: namespace, Name: name, Underlying: PrimitiveTypeOf(underlying)}
}

func (t *TypeDefinition) Kind() TypeKind   { return KindTypeDefinition }
func (t *TypeDefinition) FullName() string { return qualify(t.Namespace, t.Name) }

// ValueConverter returns the converter used for this definition.
func (t *TypeDefinition) ValueConverter() PrimitiveValueConverter {
	if t.Converter != nil {
		return t.Converter
	}
	return DefaultConverter(t)
}

// UntypedType is the generic Edm.Untyped sentinel.
type UntypedType struct{}

// Untyped is the single instance of the generic untyped type.
var Untyped = &UntypedType{}

func (t *UntypedType) Kind() TypeKind   { return KindUntyped }
func (t *UntypedType) FullName() string { return UntypedTypeName }

// PropertyKind distinguishes structural and navigation properties.
type PropertyKind int

const (
	StructuralProperty PropertyKind = iota
	NavigationProperty
)

// Property is a declared property of a structured type.
type Property struct {
	Name           string
	Type           *TypeReference
	PropertyKind   PropertyKind
	ContainsTarget bool
	// Partner names the navigation property on the target type pointing back, if any.
	Partner   string
	Declaring *StructuredType
}

// IsNavigation reports whether the property is a navigation property.
func (p *Property) IsNavigation() bool {
	return p != nil && p.PropertyKind == NavigationProperty
}

// StructuredType is a complex or entity type. Untyped structured types are
// open complex types synthesized for payload objects with no declared type.
type StructuredType struct {
	Namespace string
	Name      string
	BaseType  *StructuredType
	Abstract  bool
	Open      bool
	HasStream bool
	Keys      []string

	kind       TypeKind
	untyped    bool
	properties []*Property
	byName     map[string]*Property
}

// NewComplexType creates an empty complex type.
func NewComplexType(namespace, name string) *StructuredType {
	return &StructuredType{Namespace: namespace, Name: name, kind: KindComplex}
}

// NewEntityType creates an empty entity type.
func NewEntityType(namespace, name string) *StructuredType {
	return &StructuredType{Namespace: namespace, Name: name, kind: KindEntity}
}

// NewUntypedStructuredType creates an open structured type for payload
// objects without declared metadata. An empty name yields the anonymous
// Edm.Untyped structured type.
func NewUntypedStructuredType(namespace, name string) *StructuredType {
	return &StructuredType{Namespace: namespace, Name: name, kind: KindComplex, Open: true, untyped: true}
}

func (t *StructuredType) Kind() TypeKind { return t.kind }

func (t *StructuredType) FullName() string {
	if t.untyped && t.Name == "" {
		return UntypedTypeName
	}
	return qualify(t.Namespace, t.Name)
}

// IsUntyped reports whether the type was synthesized for a payload without metadata.
func (t *StructuredType) IsUntyped() bool { return t.untyped }

// IsOpen reports whether the type or any of its base types is open.
func (t *StructuredType) IsOpen() bool {
	for cur := t; cur != nil; cur = cur.BaseType {
		if cur.Open {
			return true
		}
	}
	return false
}

// AddStructuralProperty declares a structural property.
func (t *StructuredType) AddStructuralProperty(name string, typ *TypeReference) *Property {
	return t.addProperty(&Property{Name: name, Type: typ, PropertyKind: StructuralProperty})
}

// AddNavigationProperty declares a navigation property targeting an entity type.
func (t *StructuredType) AddNavigationProperty(name string, target *StructuredType, collection, nullable bool) *Property {
	ref := NewTypeReference(target, nullable)
	if collection {
		ref = NewTypeReference(NewCollectionType(NewTypeReference(target, false)), false)
	}
	return t.addProperty(&Property{Name: name, Type: ref, PropertyKind: NavigationProperty})
}

func (t *StructuredType) addProperty(p *Property) *Property {
	if t.byName == nil {
		t.byName = make(map[string]*Property)
	}
	p.Declaring = t
	if existing, ok := t.byName[p.Name]; ok {
		*existing = *p
		return existing
	}
	t.byName[p.Name] = p
	t.properties = append(t.properties, p)
	return p
}

// DeclaredProperties returns the properties declared directly on this type.
func (t *StructuredType) DeclaredProperties() []*Property {
	return append([]*Property(nil), t.properties...)
}

// Properties returns all properties, base type properties first.
func (t *StructuredType) Properties() []*Property {
	var chain []*StructuredType
	for cur := t; cur != nil; cur = cur.BaseType {
		chain = append(chain, cur)
	}
	var out []*Property
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].properties...)
	}
	return out
}

// FindProperty looks up a property by name, walking the base type chain.
// Returns nil if no such property is declared.
func (t *StructuredType) FindProperty(name string) *Property {
	for cur := t; cur != nil; cur = cur.BaseType {
		if p, ok := cur.byName[name]; ok {
			return p
		}
	}
	return nil
}

// IsDerivedFrom reports whether t equals other or derives from it.
func (t *StructuredType) IsDerivedFrom(other *StructuredType) bool {
	if other == nil {
		return false
	}
	if other.untyped && other.Name == "" {
		return true
	}
	for cur := t; cur != nil; cur = cur.BaseType {
		if cur == other || cur.FullName() == other.FullName() {
			return true
		}
	}
	return false
}

// Model is a set of EDM types, aliases, and terms addressable by qualified name.
type Model struct {
	types   map[string]Type
	aliases map[string]string
	terms   map[string]*TypeReference
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		types:   make(map[string]Type),
		aliases: make(map[string]string),
		terms:   make(map[string]*TypeReference),
	}
}

// AddType registers a named type. Collection and primitive types cannot be registered.
func (m *Model) AddType(t Type) error {
	switch t.(type) {
	case *CollectionType, *PrimitiveType, *UntypedType:
		return fmt.Errorf("type %s cannot be registered in a model", t.FullName())
	}
	name := t.FullName()
	if _, exists := m.types[name]; exists {
		return fmt.Errorf("type %s is already defined", name)
	}
	m.types[name] = t
	return nil
}

// MustAddType is AddType for model construction in code; it panics on error.
func (m *Model) MustAddType(t Type) {
	if err := m.AddType(t); err != nil {
		panic(err)
	}
}

// AddAlias makes alias usable in place of namespace in qualified names.
func (m *Model) AddAlias(alias, namespace string) {
	m.aliases[alias] = namespace
}

// AddTerm declares an annotation term and its value type.
func (m *Model) AddTerm(name string, typ *TypeReference) {
	m.terms[name] = typ
}

// FindTerm returns the declared type of a term, or nil.
func (m *Model) FindTerm(name string) *TypeReference {
	if m == nil {
		return nil
	}
	if ref, ok := m.terms[name]; ok {
		return ref
	}
	return m.terms[m.expandAlias(name)]
}

// FindType resolves a qualified type name. Primitive names, aliases, and
// Collection(...) wrappers are understood. Returns nil if the name is unknown.
func (m *Model) FindType(name string) Type {
	if item, ok := CollectionItemTypeName(name); ok {
		element := m.FindType(item)
		if element == nil {
			return nil
		}
		return NewCollectionType(NewTypeReference(element, true))
	}
	if name == UntypedTypeName {
		return Untyped
	}
	if p, ok := LookupPrimitive(name); ok {
		return p
	}
	if m == nil {
		return nil
	}
	if t, ok := m.types[name]; ok {
		return t
	}
	if t, ok := m.types[m.expandAlias(name)]; ok {
		return t
	}
	return nil
}

// FindStructuredType resolves a name to a complex or entity type.
func (m *Model) FindStructuredType(name string) *StructuredType {
	st, _ := m.FindType(name).(*StructuredType)
	return st
}

// Types returns the registered types ordered by full name.
func (m *Model) Types() []Type {
	names := make([]string, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Type, 0, len(names))
	for _, name := range names {
		out = append(out, m.types[name])
	}
	return out
}

// Terms returns the declared term names in sorted order.
func (m *Model) Terms() []string {
	names := make([]string, 0, len(m.terms))
	for name := range m.terms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies the types, aliases, and terms of other into m.
func (m *Model) Merge(other *Model) error {
	for _, t := range other.Types() {
		if err := m.AddType(t); err != nil {
			return err
		}
	}
	for alias, ns := range other.aliases {
		m.aliases[alias] = ns
	}
	for name, ref := range other.terms {
		m.terms[name] = ref
	}
	return nil
}

func (m *Model) expandAlias(name string) string {
	ns, local := SplitQualifiedName(name)
	if full, ok := m.aliases[ns]; ok {
		return qualify(full, local)
	}
	return name
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// SplitQualifiedName splits "NS.Sub.Name" into ("NS.Sub", "Name").
func SplitQualifiedName(name string) (namespace, local string) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}
