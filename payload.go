package odata

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// PayloadKind names the top-level shape of a payload.
type PayloadKind string

const (
	PayloadProperty             PayloadKind = "property"
	PayloadCollection           PayloadKind = "collection"
	PayloadResource             PayloadKind = "resource"
	PayloadResourceSet          PayloadKind = "resource-set"
	PayloadEntityReferenceLink  PayloadKind = "ref"
	PayloadEntityReferenceLinks PayloadKind = "refs"
)

// PayloadKinds lists the kinds accepted by ParsePayloadKind.
var PayloadKinds = []PayloadKind{
	PayloadProperty,
	PayloadCollection,
	PayloadResource,
	PayloadResourceSet,
	PayloadEntityReferenceLink,
	PayloadEntityReferenceLinks,
}

// ParsePayloadKind parses a payload kind name, ignoring case.
func ParsePayloadKind(s string) (PayloadKind, error) {
	for _, k := range PayloadKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("odata: unknown payload kind %q", s)
}

// Read reads a payload of the given kind. For collections and resource sets
// typ is the element type; reference payloads ignore it.
func (r *Reader) Read(ctx context.Context, in io.Reader, kind PayloadKind, typ *TypeReference) (any, error) {
	switch kind {
	case PayloadProperty:
		return r.ReadProperty(ctx, in, typ)
	case PayloadCollection:
		return r.ReadCollection(ctx, in, typ)
	case PayloadResource:
		return r.ReadResource(ctx, in, typ)
	case PayloadResourceSet:
		return r.ReadResourceSet(ctx, in, typ)
	case PayloadEntityReferenceLink:
		return r.ReadEntityReferenceLink(ctx, in)
	case PayloadEntityReferenceLinks:
		return r.ReadEntityReferenceLinks(ctx, in)
	}
	return nil, fmt.Errorf("odata: unknown payload kind %q", kind)
}
