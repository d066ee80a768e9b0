// Package spatial reads GeoJSON values for Edm.Geography* and Edm.Geometry*
// properties from a jsonsource.Reader.
package spatial

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

// DepthGuard is the nesting counter shared with the caller. Enter fails when
// the configured depth would be exceeded; Leave is only called after a
// successful Enter.
type DepthGuard interface {
	Enter() error
	Leave()
}

// Position is a coordinate tuple: longitude, latitude and optional altitude and measure.
type Position []float64

// Value is a decoded GeoJSON value.
type Value struct {
	Kind edm.PrimitiveKind
	// Type is the GeoJSON type name ("Point", "Polygon", ...).
	Type string
	// Coordinates is a Position, []Position, [][]Position or [][][]Position
	// depending on Type. Nil for collections.
	Coordinates any
	Geometries  []*Value
	// CRS is the name from a named "crs" member, if present.
	CRS string
}

var (
	// ErrInvalid reports a value that is not valid GeoJSON.
	ErrInvalid = errors.New("spatial: invalid GeoJSON")
	// ErrTypeMismatch reports a GeoJSON type that does not fit the declared kind.
	ErrTypeMismatch = errors.New("spatial: GeoJSON type does not match the declared type")
)

// coordinate nesting per GeoJSON type
var coordinateDepth = map[string]int{
	"Point":           1,
	"LineString":      2,
	"MultiPoint":      2,
	"Polygon":         3,
	"MultiLineString": 3,
	"MultiPolygon":    4,
}

// Reader reads spatial values.
type Reader struct{}

// NewReader returns a spatial reader.
func NewReader() *Reader { return &Reader{} }

// ReadSpatial reads a GeoJSON object for the given kind. When insideObject
// is true the opening brace was already consumed. The reader is left on the
// node following the object.
func (sr *Reader) ReadSpatial(ctx context.Context, r jsonsource.Reader, kind edm.PrimitiveKind, insideObject bool, guard DepthGuard) (*Value, error) {
	if !insideObject {
		if r.NodeKind() != jsonsource.StartObject {
			return nil, fmt.Errorf("%w: expected an object, found %s", ErrInvalid, r.NodeKind())
		}
		if err := r.Read(ctx); err != nil {
			return nil, err
		}
	}
	v, err := readObject(ctx, r, guard)
	if err != nil {
		return nil, err
	}
	if err := assignKind(v, kind); err != nil {
		return nil, err
	}
	return v, nil
}

// readObject reads the members of a GeoJSON object after its StartObject.
func readObject(ctx context.Context, r jsonsource.Reader, guard DepthGuard) (*Value, error) {
	if err := guard.Enter(); err != nil {
		return nil, err
	}
	defer guard.Leave()

	v := &Value{}
	var rawCoordinates any
	for r.NodeKind() == jsonsource.Property {
		name, err := r.PropertyName()
		if err != nil {
			return nil, err
		}
		if err := r.Read(ctx); err != nil {
			return nil, err
		}
		switch name {
		case "type":
			s, ok := r.Value().(string)
			if r.NodeKind() != jsonsource.PrimitiveValue || !ok {
				return nil, fmt.Errorf("%w: \"type\" must be a string", ErrInvalid)
			}
			v.Type = s
			if err := r.Read(ctx); err != nil {
				return nil, err
			}
		case "coordinates":
			rawCoordinates, err = readCoordinates(ctx, r, guard)
			if err != nil {
				return nil, err
			}
		case "geometries":
			v.Geometries, err = readGeometries(ctx, r, guard)
			if err != nil {
				return nil, err
			}
		case "crs":
			v.CRS, err = readCRS(ctx, r)
			if err != nil {
				return nil, err
			}
		default:
			if err := r.SkipValue(ctx); err != nil {
				return nil, err
			}
		}
	}
	if r.NodeKind() != jsonsource.EndObject {
		return nil, fmt.Errorf("%w: unexpected %s", ErrInvalid, r.NodeKind())
	}
	if err := r.Read(ctx); err != nil {
		return nil, err
	}

	if v.Type == "" {
		return nil, fmt.Errorf("%w: missing \"type\"", ErrInvalid)
	}
	if v.Type == "GeometryCollection" {
		if v.Geometries == nil {
			return nil, fmt.Errorf("%w: GeometryCollection without \"geometries\"", ErrInvalid)
		}
		return v, nil
	}
	depth, ok := coordinateDepth[v.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalid, v.Type)
	}
	coords, err := shapeCoordinates(rawCoordinates, depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s coordinates: %v", ErrInvalid, v.Type, err)
	}
	v.Coordinates = coords
	return v, nil
}

func readGeometries(ctx context.Context, r jsonsource.Reader, guard DepthGuard) ([]*Value, error) {
	if r.NodeKind() != jsonsource.StartArray {
		return nil, fmt.Errorf("%w: \"geometries\" must be an array", ErrInvalid)
	}
	if err := guard.Enter(); err != nil {
		return nil, err
	}
	defer guard.Leave()
	if err := r.Read(ctx); err != nil {
		return nil, err
	}
	out := []*Value{}
	for r.NodeKind() != jsonsource.EndArray {
		if r.NodeKind() != jsonsource.StartObject {
			return nil, fmt.Errorf("%w: geometry must be an object", ErrInvalid)
		}
		if err := r.Read(ctx); err != nil {
			return nil, err
		}
		g, err := readObject(ctx, r, guard)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, r.Read(ctx)
}

// readCoordinates reads nested arrays of numbers into []any / float64.
func readCoordinates(ctx context.Context, r jsonsource.Reader, guard DepthGuard) (any, error) {
	switch r.NodeKind() {
	case jsonsource.PrimitiveValue:
		n, ok := r.Value().(jsonsource.Number)
		if !ok {
			return nil, fmt.Errorf("%w: coordinate must be a number", ErrInvalid)
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return f, r.Read(ctx)
	case jsonsource.StartArray:
		if err := guard.Enter(); err != nil {
			return nil, err
		}
		defer guard.Leave()
		if err := r.Read(ctx); err != nil {
			return nil, err
		}
		items := []any{}
		for r.NodeKind() != jsonsource.EndArray {
			item, err := readCoordinates(ctx, r, guard)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, r.Read(ctx)
	}
	return nil, fmt.Errorf("%w: unexpected %s in coordinates", ErrInvalid, r.NodeKind())
}

func shapeCoordinates(raw any, depth int) (any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.New("expected an array")
	}
	if depth == 1 {
		pos := make(Position, 0, len(items))
		for _, item := range items {
			f, ok := item.(float64)
			if !ok {
				return nil, errors.New("position must contain numbers")
			}
			pos = append(pos, f)
		}
		if len(pos) < 2 {
			return nil, errors.New("position needs at least two numbers")
		}
		return pos, nil
	}

	switch depth {
	case 2:
		out := make([]Position, 0, len(items))
		for _, item := range items {
			p, err := shapeCoordinates(item, 1)
			if err != nil {
				return nil, err
			}
			out = append(out, p.(Position))
		}
		return out, nil
	case 3:
		out := make([][]Position, 0, len(items))
		for _, item := range items {
			p, err := shapeCoordinates(item, 2)
			if err != nil {
				return nil, err
			}
			out = append(out, p.([]Position))
		}
		return out, nil
	default:
		out := make([][][]Position, 0, len(items))
		for _, item := range items {
			p, err := shapeCoordinates(item, 3)
			if err != nil {
				return nil, err
			}
			out = append(out, p.([][]Position))
		}
		return out, nil
	}
}

// readCRS extracts {"type":"name","properties":{"name":"..."}}; other CRS
// forms are skipped.
func readCRS(ctx context.Context, r jsonsource.Reader) (string, error) {
	if r.NodeKind() != jsonsource.StartObject {
		return "", r.SkipValue(ctx)
	}
	if err := r.Read(ctx); err != nil {
		return "", err
	}
	var name string
	for r.NodeKind() == jsonsource.Property {
		prop, _ := r.PropertyName()
		if err := r.Read(ctx); err != nil {
			return "", err
		}
		if prop != "properties" || r.NodeKind() != jsonsource.StartObject {
			if err := r.SkipValue(ctx); err != nil {
				return "", err
			}
			continue
		}
		if err := r.Read(ctx); err != nil {
			return "", err
		}
		for r.NodeKind() == jsonsource.Property {
			inner, _ := r.PropertyName()
			if err := r.Read(ctx); err != nil {
				return "", err
			}
			if s, ok := r.Value().(string); inner == "name" && ok {
				name = s
			}
			if err := r.SkipValue(ctx); err != nil {
				return "", err
			}
		}
		if err := r.Read(ctx); err != nil {
			return "", err
		}
	}
	return name, r.Read(ctx)
}

// assignKind checks the GeoJSON type against the declared kind and sets the
// concrete kind on v and its members.
func assignKind(v *Value, declared edm.PrimitiveKind) error {
	geography := declared.IsGeography()
	if shape := declared.SpatialShape(); shape != "" && shape != v.Type {
		return fmt.Errorf("%w: %s is not %s", ErrTypeMismatch, v.Type, declared)
	}
	v.Kind = kindForShape(v.Type, geography)
	for _, g := range v.Geometries {
		if err := assignKind(g, abstractKind(geography)); err != nil {
			return err
		}
	}
	return nil
}

func abstractKind(geography bool) edm.PrimitiveKind {
	if geography {
		return edm.PrimitiveGeography
	}
	return edm.PrimitiveGeometry
}

func kindForShape(shape string, geography bool) edm.PrimitiveKind {
	prefix := "Geometry"
	if geography {
		prefix = "Geography"
	}
	name := "Edm." + prefix + shape
	if shape == "GeometryCollection" {
		name = "Edm." + prefix + "Collection"
	}
	if p, ok := edm.LookupPrimitive(name); ok {
		return p.PrimitiveKind()
	}
	return abstractKind(geography)
}
