package metadata

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/nlstn/go-odata-reader/internal/edm"
)

// CustomTypeResolver lets callers map payload type names to types outside
// (or in place of) the model. Returning nil falls back to the model.
type CustomTypeResolver func(expected edm.Type, typeName string) edm.Type

// ResolveReason classifies type resolution failures.
type ResolveReason int

const (
	ReasonEmptyTypeName ResolveReason = iota + 1
	ReasonIncorrectTypeKind
	ReasonIncompatibleType
	ReasonEntityValueNotAllowed
)

// ResolveError describes why a payload type name could not be used.
type ResolveError struct {
	Reason       ResolveReason
	TypeName     string
	ExpectedType string
	ExpectedKind edm.TypeKind
	ActualKind   edm.TypeKind
}

func (e *ResolveError) Error() string {
	switch e.Reason {
	case ReasonEmptyTypeName:
		return "type name must not be empty"
	case ReasonIncorrectTypeKind:
		return fmt.Sprintf("type %q is of kind %s, expected kind %s", e.TypeName, e.ActualKind, e.ExpectedKind)
	case ReasonEntityValueNotAllowed:
		return fmt.Sprintf("entity type %q cannot be used for a property value", e.TypeName)
	default:
		return fmt.Sprintf("type %q is not compatible with expected type %q", e.TypeName, e.ExpectedType)
	}
}

type cacheEntry struct {
	name string
	typ  edm.Type
}

// Provider answers type questions for the deserializer from an EDM model.
// Name lookups are cached; call Invalidate after changing the model.
type Provider struct {
	model    *edm.Model
	resolver CustomTypeResolver

	mu    sync.RWMutex
	cache map[uint64]cacheEntry
}

// NewProvider creates a provider over model. A nil model behaves as an empty model.
func NewProvider(model *edm.Model) *Provider {
	if model == nil {
		model = edm.NewModel()
	}
	return &Provider{model: model, cache: make(map[uint64]cacheEntry)}
}

// Model returns the underlying model.
func (p *Provider) Model() *edm.Model { return p.model }

// SetTypeResolver installs a custom type resolver; nil removes it.
func (p *Provider) SetTypeResolver(resolver CustomTypeResolver) {
	p.mu.Lock()
	p.resolver = resolver
	p.mu.Unlock()
}

// Invalidate drops cached name lookups.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cache = make(map[uint64]cacheEntry)
	p.mu.Unlock()
}

// ResolveTypeName resolves a payload type name. For names unknown to the
// model it returns a nil type and KindNone, or KindCollection when the name
// has the Collection(...) form.
func (p *Provider) ResolveTypeName(expected *edm.TypeReference, typeName string) (edm.Type, edm.TypeKind, error) {
	if typeName == "" {
		return nil, edm.KindNone, &ResolveError{Reason: ReasonEmptyTypeName}
	}

	p.mu.RLock()
	resolver := p.resolver
	p.mu.RUnlock()
	if resolver != nil {
		if t := resolver(expected.Definition(), typeName); t != nil {
			return t, t.Kind(), nil
		}
	}

	t := p.lookup(typeName)
	if t == nil {
		if edm.IsCollectionTypeName(typeName) {
			return nil, edm.KindCollection, nil
		}
		return nil, edm.KindNone, nil
	}
	return t, t.Kind(), nil
}

func (p *Provider) lookup(typeName string) edm.Type {
	key := xxhash.Sum64String(typeName)
	p.mu.RLock()
	entry, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && entry.name == typeName {
		return entry.typ
	}

	t := p.model.FindType(typeName)
	if t != nil {
		p.mu.Lock()
		p.cache[key] = cacheEntry{name: typeName, typ: t}
		p.mu.Unlock()
	}
	return t
}

// FindProperty looks up a declared property.
func (p *Provider) FindProperty(t *edm.StructuredType, name string) *edm.Property {
	if t == nil {
		return nil
	}
	return t.FindProperty(name)
}

// IsOpen reports whether t accepts undeclared properties.
func (p *Provider) IsOpen(t *edm.StructuredType) bool {
	return t == nil || t.IsOpen()
}

// TermType returns the declared type of an annotation term, or nil.
func (p *Provider) TermType(term string) *edm.TypeReference {
	return p.model.FindTerm(term)
}
