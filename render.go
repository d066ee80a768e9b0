package odata

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/spatial"
	"github.com/shopspring/decimal"
)

// Plain converts a value produced by a read into a tree of maps, slices,
// strings, numbers and booleans that encodes cleanly as JSON or CBOR.
// Control information is rendered with the "@odata." names it has on the
// wire, so the output reads like a normalized payload.
func Plain(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Property:
		return plainProperty(x)
	case *Resource:
		return plainResource(x)
	case *ResourceSet:
		return plainResourceSet(x)
	case *ResourceValue:
		return plainResourceValue(x)
	case *CollectionValue:
		return plainItems(x.Items)
	case *EnumValue:
		return x.Value, nil
	case *UntypedValue:
		var raw any
		if err := json.Unmarshal([]byte(x.RawValue), &raw); err != nil {
			return x.RawValue, nil
		}
		return raw, nil
	case *StreamReferenceValue:
		return plainStream(x), nil
	case *EntityReferenceLink:
		return plainLink(x)
	case *EntityReferenceLinks:
		return plainLinks(x)
	case *spatial.Value:
		return plainSpatial(x), nil
	case *url.URL:
		return x.String(), nil
	case decimal.Decimal:
		return x.String(), nil
	case uuid.UUID:
		return x.String(), nil
	case edm.Date:
		return x.String(), nil
	case edm.TimeOfDay:
		return x.String(), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case time.Duration:
		return x.String(), nil
	case float64:
		return plainFloat(x), nil
	case float32:
		return plainFloat(float64(x)), nil
	case []any:
		return plainItems(x)
	case string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, []byte:
		return x, nil
	case fmt.Stringer:
		// values from custom type definition converters
		return x.String(), nil
	default:
		return nil, fmt.Errorf("odata: cannot render %T", v)
	}
}

// non-finite numbers use their OData literals
func plainFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return f
}

func plainItems(items []any) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		p, err := Plain(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func plainProperty(p *Property) (map[string]any, error) {
	out := map[string]any{}
	if p.ContextURL != nil {
		out["@odata.context"] = p.ContextURL.String()
	}
	v, err := Plain(p.Value)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", p.Name, err)
	}
	out["value"] = v
	if err := addAnnotations(out, "", p.InstanceAnnotations); err != nil {
		return nil, err
	}
	return out, nil
}

func addAnnotations(out map[string]any, prefix string, annotations []*InstanceAnnotation) error {
	for _, a := range annotations {
		v, err := Plain(a.Value)
		if err != nil {
			return fmt.Errorf("annotation %s: %w", a.Name, err)
		}
		out[prefix+"@"+a.Name] = v
	}
	return nil
}

func addProperties(out map[string]any, props []*Property) error {
	for _, p := range props {
		v, err := Plain(p.Value)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		out[p.Name] = v
		if err := addAnnotations(out, p.Name, p.InstanceAnnotations); err != nil {
			return err
		}
	}
	return nil
}

func setURL(out map[string]any, key string, u *url.URL) {
	if u != nil {
		out[key] = u.String()
	}
}

func plainResource(r *Resource) (map[string]any, error) {
	if r == nil {
		return nil, nil
	}
	out := map[string]any{}
	setURL(out, "@odata.context", r.ContextURL)
	if r.TypeName != "" {
		out["@odata.type"] = "#" + r.TypeName
	}
	setURL(out, "@odata.id", r.ID)
	if r.IsTransient {
		out["@odata.id"] = nil
	}
	if r.ETag != "" {
		out["@odata.etag"] = r.ETag
	}
	setURL(out, "@odata.editLink", r.EditLink)
	setURL(out, "@odata.readLink", r.ReadLink)
	if ms := r.MediaResource; ms != nil {
		setURL(out, "@odata.mediaEditLink", ms.EditLink)
		setURL(out, "@odata.mediaReadLink", ms.ReadLink)
		if ms.ContentType != "" {
			out["@odata.mediaContentType"] = ms.ContentType
		}
		if ms.ETag != "" {
			out["@odata.mediaEtag"] = ms.ETag
		}
	}
	if err := addAnnotations(out, "", r.InstanceAnnotations); err != nil {
		return nil, err
	}
	if err := addProperties(out, r.Properties); err != nil {
		return nil, err
	}
	for _, info := range r.NestedResourceInfos {
		if err := addNested(out, info); err != nil {
			return nil, err
		}
	}
	for _, op := range r.Operations {
		entry := map[string]any{}
		if op.Title != "" {
			entry["title"] = op.Title
		}
		setURL(entry, "target", op.Target)
		out[op.Metadata] = entry
	}
	return out, nil
}

func addNested(out map[string]any, info *NestedResourceInfo) error {
	name := info.Name
	setURL(out, name+"@odata.navigationLink", info.URL)
	setURL(out, name+"@odata.associationLink", info.AssociationLinkURL)
	setURL(out, name+"@odata.context", info.ContextURL)
	setURL(out, name+"@odata.nextLink", info.NextPageLink)
	if info.Count != nil {
		out[name+"@odata.count"] = *info.Count
	}

	switch info.Kind {
	case NestedExpandedResource:
		v, err := plainResource(info.Resource)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	case NestedExpandedResourceSet:
		if info.ResourceSet == nil {
			return nil
		}
		items, err := plainItems(info.ResourceSet.Items)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out[name] = items
	case NestedEntityReferenceLinks:
		links := make([]any, 0, len(info.EntityReferenceLinks))
		for _, l := range info.EntityReferenceLinks {
			v, err := plainLink(l)
			if err != nil {
				return err
			}
			links = append(links, v)
		}
		out[name+"@odata.bind"] = links
	case NestedStream:
		if info.Stream != nil {
			out[name] = plainStream(info.Stream)
		}
	case NestedStreamCollection:
		streams := make([]any, 0, len(info.Streams))
		for _, s := range info.Streams {
			streams = append(streams, plainStream(s))
		}
		out[name] = streams
	}
	return nil
}

func plainResourceSet(s *ResourceSet) (map[string]any, error) {
	out := map[string]any{}
	setURL(out, "@odata.context", s.ContextURL)
	if s.Count != nil {
		out["@odata.count"] = *s.Count
	}
	setURL(out, "@odata.nextLink", s.NextPageLink)
	setURL(out, "@odata.deltaLink", s.DeltaLink)
	if err := addAnnotations(out, "", s.InstanceAnnotations); err != nil {
		return nil, err
	}
	items, err := plainItems(s.Items)
	if err != nil {
		return nil, err
	}
	out["value"] = items
	return out, nil
}

func plainResourceValue(r *ResourceValue) (map[string]any, error) {
	out := map[string]any{}
	if r.TypeAnnotation != nil && r.TypeAnnotation.FromPayload {
		out["@odata.type"] = "#" + r.TypeAnnotation.TypeName
	}
	if err := addAnnotations(out, "", r.InstanceAnnotations); err != nil {
		return nil, err
	}
	if err := addProperties(out, r.Properties); err != nil {
		return nil, err
	}
	return out, nil
}

func plainStream(s *StreamReferenceValue) map[string]any {
	out := map[string]any{}
	setURL(out, "@odata.mediaEditLink", s.EditLink)
	setURL(out, "@odata.mediaReadLink", s.ReadLink)
	if s.ContentType != "" {
		out["@odata.mediaContentType"] = s.ContentType
	}
	if s.ETag != "" {
		out["@odata.mediaEtag"] = s.ETag
	}
	if s.Content != nil {
		out["content"] = s.Content
	}
	return out
}

func plainLink(l *EntityReferenceLink) (map[string]any, error) {
	out := map[string]any{}
	setURL(out, "@odata.id", l.URL)
	if err := addAnnotations(out, "", l.InstanceAnnotations); err != nil {
		return nil, err
	}
	return out, nil
}

func plainLinks(ls *EntityReferenceLinks) (map[string]any, error) {
	out := map[string]any{}
	setURL(out, "@odata.context", ls.ContextURL)
	if ls.Count != nil {
		out["@odata.count"] = *ls.Count
	}
	setURL(out, "@odata.nextLink", ls.NextPageLink)
	if err := addAnnotations(out, "", ls.InstanceAnnotations); err != nil {
		return nil, err
	}
	links := make([]any, 0, len(ls.Links))
	for _, l := range ls.Links {
		v, err := plainLink(l)
		if err != nil {
			return nil, err
		}
		links = append(links, v)
	}
	out["value"] = links
	return out, nil
}

func plainSpatial(v *spatial.Value) map[string]any {
	out := map[string]any{"type": v.Type}
	if v.Geometries != nil {
		geoms := make([]any, 0, len(v.Geometries))
		for _, g := range v.Geometries {
			geoms = append(geoms, plainSpatial(g))
		}
		out["geometries"] = geoms
	} else {
		out["coordinates"] = v.Coordinates
	}
	if v.CRS != "" {
		out["crs"] = map[string]any{"type": "name", "properties": map[string]any{"name": v.CRS}}
	}
	return out
}
