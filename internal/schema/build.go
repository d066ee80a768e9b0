package schema

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-reader/internal/edm"
)

// Validate checks the document for missing and duplicate names.
func (d *Document) Validate() error {
	if d.Namespace == "" {
		return fmt.Errorf("schema: namespace is required")
	}
	seen := make(map[string]bool)
	declare := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("schema: %s without a name in namespace %s", kind, d.Namespace)
		}
		if seen[name] {
			return fmt.Errorf("schema: %s is declared more than once in namespace %s", name, d.Namespace)
		}
		seen[name] = true
		return nil
	}
	for _, e := range d.EnumTypes {
		if err := declare("enum type", e.Name); err != nil {
			return err
		}
		members := make(map[string]bool, len(e.Members))
		for _, m := range e.Members {
			if m.Name == "" || members[m.Name] {
				return fmt.Errorf("schema: enum %s has an empty or duplicate member name", e.Name)
			}
			members[m.Name] = true
		}
	}
	for _, td := range d.TypeDefinitions {
		if err := declare("type definition", td.Name); err != nil {
			return err
		}
	}
	for _, st := range append(append([]StructuredType(nil), d.EntityTypes...), d.ComplexTypes...) {
		if err := declare("structured type", st.Name); err != nil {
			return err
		}
		props := make(map[string]bool)
		for _, p := range st.Properties {
			if p.Name == "" || p.Type == "" || props[p.Name] {
				return fmt.Errorf("schema: %s has a property with an empty or duplicate name or no type", st.Name)
			}
			props[p.Name] = true
		}
		for _, p := range st.NavigationProperties {
			if p.Name == "" || p.Type == "" || props[p.Name] {
				return fmt.Errorf("schema: %s has a navigation property with an empty or duplicate name or no type", st.Name)
			}
			props[p.Name] = true
		}
	}
	terms := make(map[string]bool)
	for _, t := range d.Terms {
		if t.Name == "" || t.Type == "" || terms[t.Name] {
			return fmt.Errorf("schema: term with an empty or duplicate name or no type in namespace %s", d.Namespace)
		}
		terms[t.Name] = true
	}
	return nil
}

// Build creates a new model holding the document's types.
func (d *Document) Build() (*edm.Model, error) {
	m := edm.NewModel()
	if err := d.BuildInto(m); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildInto adds the document's types and terms to m. Types of other
// namespaces already in m may be referenced. On error m may hold part of
// the document.
func (d *Document) BuildInto(m *edm.Model) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Alias != "" {
		m.AddAlias(d.Alias, d.Namespace)
	}
	b := &builder{doc: d, model: m, structured: make(map[string]*edm.StructuredType)}
	if err := b.declare(); err != nil {
		return err
	}
	if err := b.define(); err != nil {
		return err
	}
	return b.terms()
}

type builder struct {
	doc        *Document
	model      *edm.Model
	structured map[string]*edm.StructuredType
}

func (b *builder) qualify(name string) string {
	name = edm.NormalizeTypeName(name)
	if item, ok := edm.CollectionItemTypeName(name); ok {
		return "Collection(" + b.qualify(item) + ")"
	}
	if strings.Contains(name, ".") {
		return name
	}
	return b.doc.Namespace + "." + name
}

func (b *builder) resolve(name string) (edm.Type, error) {
	t := b.model.FindType(b.qualify(name))
	if t == nil {
		return nil, fmt.Errorf("schema: unknown type %q", name)
	}
	return t, nil
}

func primitiveKind(name string, fallback edm.PrimitiveKind) (edm.PrimitiveKind, error) {
	if name == "" {
		return fallback, nil
	}
	p, ok := edm.LookupPrimitive(edm.NormalizeTypeName(name))
	if !ok {
		return edm.PrimitiveNone, fmt.Errorf("schema: %q is not a primitive type", name)
	}
	return p.PrimitiveKind(), nil
}

// declare registers every named type so definitions can refer to each other.
func (b *builder) declare() error {
	ns := b.doc.Namespace
	for _, e := range b.doc.EnumTypes {
		members := make([]edm.EnumMember, 0, len(e.Members))
		for _, m := range e.Members {
			members = append(members, edm.EnumMember{Name: m.Name, Value: m.Value})
		}
		enum := edm.NewEnumType(ns, e.Name, members...)
		kind, err := primitiveKind(e.UnderlyingType, edm.PrimitiveInt32)
		if err != nil {
			return err
		}
		if !kind.IsIntegral() {
			return fmt.Errorf("schema: enum %s must have an integer underlying type", e.Name)
		}
		enum.Underlying = kind
		enum.IsFlags = e.IsFlags
		if err := b.model.AddType(enum); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	for _, td := range b.doc.TypeDefinitions {
		kind, err := primitiveKind(td.UnderlyingType, edm.PrimitiveNone)
		if err != nil {
			return err
		}
		if kind == edm.PrimitiveNone {
			return fmt.Errorf("schema: type definition %s needs an underlying type", td.Name)
		}
		if err := b.model.AddType(edm.NewTypeDefinition(ns, td.Name, kind)); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	for _, et := range b.doc.EntityTypes {
		st := edm.NewEntityType(ns, et.Name)
		if err := b.addStructured(st, et); err != nil {
			return err
		}
	}
	for _, ct := range b.doc.ComplexTypes {
		st := edm.NewComplexType(ns, ct.Name)
		if err := b.addStructured(st, ct); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addStructured(st *edm.StructuredType, decl StructuredType) error {
	st.Abstract = decl.Abstract
	st.Open = decl.Open
	st.HasStream = decl.HasStream
	st.Keys = append([]string(nil), decl.Key...)
	if err := b.model.AddType(st); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	b.structured[decl.Name] = st
	return nil
}

// define fills in base types and properties.
func (b *builder) define() error {
	decls := append(append([]StructuredType(nil), b.doc.EntityTypes...), b.doc.ComplexTypes...)
	for _, decl := range decls {
		st := b.structured[decl.Name]
		if decl.BaseType == "" {
			continue
		}
		t, err := b.resolve(decl.BaseType)
		if err != nil {
			return err
		}
		base, ok := t.(*edm.StructuredType)
		if !ok || base.Kind() != st.Kind() {
			return fmt.Errorf("schema: base type %s of %s must be a %s type", decl.BaseType, decl.Name, st.Kind())
		}
		st.BaseType = base
	}
	for _, decl := range decls {
		if err := checkBaseChain(b.structured[decl.Name]); err != nil {
			return err
		}
	}

	for _, decl := range decls {
		st := b.structured[decl.Name]
		for _, p := range decl.Properties {
			t, err := b.resolve(p.Type)
			if err != nil {
				return fmt.Errorf("schema: property %s.%s: %w", decl.Name, p.Name, err)
			}
			if s, ok := t.(*edm.StructuredType); ok && s.Kind() == edm.KindEntity {
				return fmt.Errorf("schema: property %s.%s refers to entity type %s; declare a navigation property", decl.Name, p.Name, p.Type)
			}
			st.AddStructuralProperty(p.Name, edm.NewTypeReference(t, nullable(p.Nullable)))
		}
		for _, p := range decl.NavigationProperties {
			target, collection, err := b.navigationTarget(p.Type)
			if err != nil {
				return fmt.Errorf("schema: navigation property %s.%s: %w", decl.Name, p.Name, err)
			}
			prop := st.AddNavigationProperty(p.Name, target, collection, nullable(p.Nullable))
			prop.Partner = p.Partner
			prop.ContainsTarget = p.ContainsTarget
		}
	}

	for _, decl := range b.doc.EntityTypes {
		st := b.structured[decl.Name]
		if len(st.Keys) == 0 && st.BaseType == nil && !st.Abstract {
			return fmt.Errorf("schema: entity type %s needs a key", decl.Name)
		}
		for _, k := range st.Keys {
			if p := st.FindProperty(k); p == nil || p.IsNavigation() {
				return fmt.Errorf("schema: key %s of %s is not a structural property", k, decl.Name)
			}
		}
	}
	return nil
}

func (b *builder) navigationTarget(name string) (*edm.StructuredType, bool, error) {
	item, collection := edm.CollectionItemTypeName(name)
	if !collection {
		item = name
	}
	t, err := b.resolve(item)
	if err != nil {
		return nil, false, err
	}
	target, ok := t.(*edm.StructuredType)
	if !ok || target.Kind() != edm.KindEntity {
		return nil, false, fmt.Errorf("target %s is not an entity type", name)
	}
	return target, collection, nil
}

func checkBaseChain(st *edm.StructuredType) error {
	seen := make(map[*edm.StructuredType]bool)
	for cur := st; cur != nil; cur = cur.BaseType {
		if seen[cur] {
			return fmt.Errorf("schema: base type cycle at %s", cur.FullName())
		}
		seen[cur] = true
	}
	return nil
}

func (b *builder) terms() error {
	for _, term := range b.doc.Terms {
		t, err := b.resolve(term.Type)
		if err != nil {
			return fmt.Errorf("schema: term %s: %w", term.Name, err)
		}
		b.model.AddTerm(b.doc.Namespace+"."+term.Name, edm.NewTypeReference(t, nullable(term.Nullable)))
	}
	return nil
}

func nullable(p *bool) bool {
	return p == nil || *p
}
