package edm

import "strings"

const collectionPrefix = "Collection("

// CollectionItemTypeName unwraps "Collection(X)" into "X".
// The second result is false when name is not a collection name.
func CollectionItemTypeName(name string) (string, bool) {
	if !strings.HasPrefix(name, collectionPrefix) || !strings.HasSuffix(name, ")") {
		return "", false
	}
	item := name[len(collectionPrefix) : len(name)-1]
	if item == "" {
		return "", false
	}
	return item, true
}

// IsCollectionTypeName reports whether name has the Collection(...) form.
func IsCollectionTypeName(name string) bool {
	_, ok := CollectionItemTypeName(name)
	return ok
}

// NormalizeTypeName turns a wire type name into a qualified EDM name:
// a leading '#' is removed and unqualified primitive names gain the
// "Edm." prefix, including inside Collection(...).
func NormalizeTypeName(name string) string {
	name = strings.TrimPrefix(name, "#")
	if item, ok := CollectionItemTypeName(name); ok {
		return collectionPrefix + NormalizeTypeName(item) + ")"
	}
	if IsPrimitiveShortName(name) || name == "Untyped" {
		return "Edm." + name
	}
	return name
}
