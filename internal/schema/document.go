// Package schema loads EDM models from schema documents. A document is a
// CSDL-like description of one namespace authored as YAML or JSONC and
// stored as deterministic CBOR.
package schema

// Document describes the types and terms of one namespace. Type names may
// be qualified or local to Namespace; primitive names may omit "Edm.".
type Document struct {
	Namespace       string           `yaml:"namespace" json:"namespace" cbor:"namespace"`
	Alias           string           `yaml:"alias,omitempty" json:"alias,omitempty" cbor:"alias,omitempty"`
	EntityTypes     []StructuredType `yaml:"entityTypes,omitempty" json:"entityTypes,omitempty" cbor:"entityTypes,omitempty"`
	ComplexTypes    []StructuredType `yaml:"complexTypes,omitempty" json:"complexTypes,omitempty" cbor:"complexTypes,omitempty"`
	EnumTypes       []EnumType       `yaml:"enumTypes,omitempty" json:"enumTypes,omitempty" cbor:"enumTypes,omitempty"`
	TypeDefinitions []TypeDefinition `yaml:"typeDefinitions,omitempty" json:"typeDefinitions,omitempty" cbor:"typeDefinitions,omitempty"`
	Terms           []Term           `yaml:"terms,omitempty" json:"terms,omitempty" cbor:"terms,omitempty"`
}

// StructuredType is an entity or complex type.
type StructuredType struct {
	Name                 string               `yaml:"name" json:"name" cbor:"name"`
	BaseType             string               `yaml:"baseType,omitempty" json:"baseType,omitempty" cbor:"baseType,omitempty"`
	Abstract             bool                 `yaml:"abstract,omitempty" json:"abstract,omitempty" cbor:"abstract,omitempty"`
	Open                 bool                 `yaml:"open,omitempty" json:"open,omitempty" cbor:"open,omitempty"`
	HasStream            bool                 `yaml:"hasStream,omitempty" json:"hasStream,omitempty" cbor:"hasStream,omitempty"`
	Key                  []string             `yaml:"key,omitempty" json:"key,omitempty" cbor:"key,omitempty"`
	Properties           []Property           `yaml:"properties,omitempty" json:"properties,omitempty" cbor:"properties,omitempty"`
	NavigationProperties []NavigationProperty `yaml:"navigationProperties,omitempty" json:"navigationProperties,omitempty" cbor:"navigationProperties,omitempty"`
}

// Property is a structural property. Nullable defaults to true.
type Property struct {
	Name     string `yaml:"name" json:"name" cbor:"name"`
	Type     string `yaml:"type" json:"type" cbor:"type"`
	Nullable *bool  `yaml:"nullable,omitempty" json:"nullable,omitempty" cbor:"nullable,omitempty"`
}

// NavigationProperty points at an entity type, or a collection of them
// when Type has the Collection(...) form.
type NavigationProperty struct {
	Name           string `yaml:"name" json:"name" cbor:"name"`
	Type           string `yaml:"type" json:"type" cbor:"type"`
	Nullable       *bool  `yaml:"nullable,omitempty" json:"nullable,omitempty" cbor:"nullable,omitempty"`
	Partner        string `yaml:"partner,omitempty" json:"partner,omitempty" cbor:"partner,omitempty"`
	ContainsTarget bool   `yaml:"containsTarget,omitempty" json:"containsTarget,omitempty" cbor:"containsTarget,omitempty"`
}

// EnumType is an enumeration. UnderlyingType defaults to Edm.Int32.
type EnumType struct {
	Name           string       `yaml:"name" json:"name" cbor:"name"`
	UnderlyingType string       `yaml:"underlyingType,omitempty" json:"underlyingType,omitempty" cbor:"underlyingType,omitempty"`
	IsFlags        bool         `yaml:"isFlags,omitempty" json:"isFlags,omitempty" cbor:"isFlags,omitempty"`
	Members        []EnumMember `yaml:"members" json:"members" cbor:"members"`
}

// EnumMember is a named enum value.
type EnumMember struct {
	Name  string `yaml:"name" json:"name" cbor:"name"`
	Value int64  `yaml:"value" json:"value" cbor:"value"`
}

// TypeDefinition narrows a primitive type.
type TypeDefinition struct {
	Name           string `yaml:"name" json:"name" cbor:"name"`
	UnderlyingType string `yaml:"underlyingType" json:"underlyingType" cbor:"underlyingType"`
}

// Term declares the value type of a custom annotation.
type Term struct {
	Name     string `yaml:"name" json:"name" cbor:"name"`
	Type     string `yaml:"type" json:"type" cbor:"type"`
	Nullable *bool  `yaml:"nullable,omitempty" json:"nullable,omitempty" cbor:"nullable,omitempty"`
}
