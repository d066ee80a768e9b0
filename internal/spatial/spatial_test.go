package spatial

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

var errTooDeep = errors.New("too deep")

type countingGuard struct {
	depth, max, peak int
}

func (g *countingGuard) Enter() error {
	if g.depth >= g.max {
		return errTooDeep
	}
	g.depth++
	if g.depth > g.peak {
		g.peak = g.depth
	}
	return nil
}

func (g *countingGuard) Leave() { g.depth-- }

func readGeoJSON(t *testing.T, payload string, kind edm.PrimitiveKind, max int) (*Value, *countingGuard, error) {
	t.Helper()
	ctx := context.Background()
	r := jsonsource.NewStringReader(payload)
	if err := r.Read(ctx); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	guard := &countingGuard{max: max}
	v, err := NewReader().ReadSpatial(ctx, r, kind, false, guard)
	if err == nil && r.NodeKind() != jsonsource.EndOfInput {
		t.Errorf("reader left on %s, want EndOfInput", r.NodeKind())
	}
	return v, guard, err
}

func TestReadSpatial(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		kind     edm.PrimitiveKind
		wantKind edm.PrimitiveKind
		want     any
	}{
		{
			name:     "point",
			payload:  `{"type":"Point","coordinates":[-122.1,47.6]}`,
			kind:     edm.PrimitiveGeographyPoint,
			wantKind: edm.PrimitiveGeographyPoint,
			want:     Position{-122.1, 47.6},
		},
		{
			name:     "point with altitude",
			payload:  `{"coordinates":[1,2,3],"type":"Point"}`,
			kind:     edm.PrimitiveGeometryPoint,
			wantKind: edm.PrimitiveGeometryPoint,
			want:     Position{1, 2, 3},
		},
		{
			name:     "line string for abstract geography",
			payload:  `{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
			kind:     edm.PrimitiveGeography,
			wantKind: edm.PrimitiveGeographyLineString,
			want:     []Position{{0, 0}, {1, 1}},
		},
		{
			name:     "polygon",
			payload:  `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
			kind:     edm.PrimitiveGeometryPolygon,
			wantKind: edm.PrimitiveGeometryPolygon,
			want:     [][]Position{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		},
		{
			name:     "multi polygon",
			payload:  `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[0,0]]]]}`,
			kind:     edm.PrimitiveGeographyMultiPolygon,
			wantKind: edm.PrimitiveGeographyMultiPolygon,
			want:     [][][]Position{{{{0, 0}, {1, 0}, {0, 0}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, guard, err := readGeoJSON(t, tt.payload, tt.kind, 10)
			if err != nil {
				t.Fatalf("ReadSpatial() error = %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("ReadSpatial() kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if !reflect.DeepEqual(got.Coordinates, tt.want) {
				t.Errorf("ReadSpatial() coordinates = %v, want %v", got.Coordinates, tt.want)
			}
			if guard.depth != 0 {
				t.Errorf("guard depth = %d after read, want 0", guard.depth)
			}
		})
	}
}

func TestReadSpatialCollectionAndCRS(t *testing.T) {
	payload := `{"type":"GeometryCollection","geometries":[` +
		`{"type":"Point","coordinates":[1,2]},` +
		`{"type":"LineString","coordinates":[[1,2],[3,4]]}],` +
		`"crs":{"type":"name","properties":{"name":"EPSG:4326"}},"bbox":[0,0,1,1]}`

	got, _, err := readGeoJSON(t, payload, edm.PrimitiveGeographyCollection, 10)
	if err != nil {
		t.Fatalf("ReadSpatial() error = %v", err)
	}
	if got.Kind != edm.PrimitiveGeographyCollection || got.CRS != "EPSG:4326" {
		t.Errorf("ReadSpatial() = %s %q, want GeographyCollection EPSG:4326", got.Kind, got.CRS)
	}
	if len(got.Geometries) != 2 {
		t.Fatalf("len(Geometries) = %d, want 2", len(got.Geometries))
	}
	if got.Geometries[0].Kind != edm.PrimitiveGeographyPoint || got.Geometries[1].Kind != edm.PrimitiveGeographyLineString {
		t.Errorf("member kinds = %s, %s", got.Geometries[0].Kind, got.Geometries[1].Kind)
	}
}

func TestReadSpatialErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    edm.PrimitiveKind
		wantErr error
	}{
		{"not an object", `[1,2]`, edm.PrimitiveGeographyPoint, ErrInvalid},
		{"missing type", `{"coordinates":[1,2]}`, edm.PrimitiveGeographyPoint, ErrInvalid},
		{"unknown type", `{"type":"Circle","coordinates":[1,2]}`, edm.PrimitiveGeography, ErrInvalid},
		{"type mismatch", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`, edm.PrimitiveGeographyPoint, ErrTypeMismatch},
		{"short position", `{"type":"Point","coordinates":[1]}`, edm.PrimitiveGeographyPoint, ErrInvalid},
		{"wrong nesting", `{"type":"Point","coordinates":[[1,2]]}`, edm.PrimitiveGeographyPoint, ErrInvalid},
		{"string coordinate", `{"type":"Point","coordinates":["1",2]}`, edm.PrimitiveGeographyPoint, ErrInvalid},
		{"collection without geometries", `{"type":"GeometryCollection"}`, edm.PrimitiveGeometryCollection, ErrInvalid},
		{"too deep", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[0,0]]]]}`, edm.PrimitiveGeometry, errTooDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, guard, err := readGeoJSON(t, tt.payload, tt.kind, 4)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadSpatial() error = %v, want %v", err, tt.wantErr)
			}
			if guard.depth != 0 {
				t.Errorf("guard depth = %d after failure, want 0", guard.depth)
			}
		})
	}
}

func TestReadSpatialGuardDepth(t *testing.T) {
	// object plus three coordinate arrays
	_, guard, err := readGeoJSON(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`, edm.PrimitiveGeometryPolygon, 4)
	if err != nil {
		t.Fatalf("ReadSpatial() error = %v", err)
	}
	if guard.peak != 4 {
		t.Errorf("guard peak = %d, want 4", guard.peak)
	}
}
