package schema

import (
	"github.com/nlstn/go-odata-reader/internal/edm"
)

// FromModel describes the types and terms of namespace held in m. Names in
// the result are qualified, so the document builds into any model that
// holds the types it refers to.
func FromModel(m *edm.Model, namespace string) *Document {
	doc := &Document{Namespace: namespace}
	for _, t := range m.Types() {
		switch t := t.(type) {
		case *edm.EnumType:
			if t.Namespace != namespace {
				continue
			}
			e := EnumType{Name: t.Name, UnderlyingType: "Edm." + t.Underlying.String(), IsFlags: t.IsFlags}
			for _, member := range t.Members {
				e.Members = append(e.Members, EnumMember{Name: member.Name, Value: member.Value})
			}
			doc.EnumTypes = append(doc.EnumTypes, e)
		case *edm.TypeDefinition:
			if t.Namespace != namespace {
				continue
			}
			doc.TypeDefinitions = append(doc.TypeDefinitions, TypeDefinition{Name: t.Name, UnderlyingType: t.Underlying.FullName()})
		case *edm.StructuredType:
			if t.Namespace != namespace || t.IsUntyped() {
				continue
			}
			if t.Kind() == edm.KindEntity {
				doc.EntityTypes = append(doc.EntityTypes, describeStructured(t))
			} else {
				doc.ComplexTypes = append(doc.ComplexTypes, describeStructured(t))
			}
		}
	}
	for _, name := range m.Terms() {
		ns, local := edm.SplitQualifiedName(name)
		if ns != namespace {
			continue
		}
		ref := m.FindTerm(name)
		doc.Terms = append(doc.Terms, Term{Name: local, Type: ref.FullName(), Nullable: nullablePtr(ref.Nullable())})
	}
	return doc
}

func describeStructured(t *edm.StructuredType) StructuredType {
	out := StructuredType{
		Name:      t.Name,
		Abstract:  t.Abstract,
		Open:      t.Open,
		HasStream: t.HasStream,
		Key:       append([]string(nil), t.Keys...),
	}
	if t.BaseType != nil {
		out.BaseType = t.BaseType.FullName()
	}
	for _, p := range t.DeclaredProperties() {
		if p.IsNavigation() {
			nav := NavigationProperty{
				Name:           p.Name,
				Type:           p.Type.FullName(),
				Partner:        p.Partner,
				ContainsTarget: p.ContainsTarget,
			}
			if !p.Type.IsCollection() {
				nav.Nullable = nullablePtr(p.Type.Nullable())
			}
			out.NavigationProperties = append(out.NavigationProperties, nav)
			continue
		}
		out.Properties = append(out.Properties, Property{Name: p.Name, Type: p.Type.FullName(), Nullable: nullablePtr(p.Type.Nullable())})
	}
	return out
}

// nullablePtr keeps documents short: only non-nullable is spelled out.
func nullablePtr(nullable bool) *bool {
	if nullable {
		return nil
	}
	f := false
	return &f
}
