package edm

import "strings"

// PrimitiveKind enumerates the EDM primitive types.
type PrimitiveKind int

const (
	PrimitiveNone PrimitiveKind = iota
	PrimitiveBinary
	PrimitiveBoolean
	PrimitiveByte
	PrimitiveDate
	PrimitiveDateTimeOffset
	PrimitiveDecimal
	PrimitiveDouble
	PrimitiveDuration
	PrimitiveGuid
	PrimitiveInt16
	PrimitiveInt32
	PrimitiveInt64
	PrimitiveSByte
	PrimitiveSingle
	PrimitiveStream
	PrimitiveString
	PrimitiveTimeOfDay
	PrimitiveGeography
	PrimitiveGeographyPoint
	PrimitiveGeographyLineString
	PrimitiveGeographyPolygon
	PrimitiveGeographyMultiPoint
	PrimitiveGeographyMultiLineString
	PrimitiveGeographyMultiPolygon
	PrimitiveGeographyCollection
	PrimitiveGeometry
	PrimitiveGeometryPoint
	PrimitiveGeometryLineString
	PrimitiveGeometryPolygon
	PrimitiveGeometryMultiPoint
	PrimitiveGeometryMultiLineString
	PrimitiveGeometryMultiPolygon
	PrimitiveGeometryCollection
)

// UntypedTypeName is the qualified name of the generic untyped type.
const UntypedTypeName = "Edm.Untyped"

var primitiveNames = map[PrimitiveKind]string{
	PrimitiveBinary:                   "Binary",
	PrimitiveBoolean:                  "Boolean",
	PrimitiveByte:                     "Byte",
	PrimitiveDate:                     "Date",
	PrimitiveDateTimeOffset:           "DateTimeOffset",
	PrimitiveDecimal:                  "Decimal",
	PrimitiveDouble:                   "Double",
	PrimitiveDuration:                 "Duration",
	PrimitiveGuid:                     "Guid",
	PrimitiveInt16:                    "Int16",
	PrimitiveInt32:                    "Int32",
	PrimitiveInt64:                    "Int64",
	PrimitiveSByte:                    "SByte",
	PrimitiveSingle:                   "Single",
	PrimitiveStream:                   "Stream",
	PrimitiveString:                   "String",
	PrimitiveTimeOfDay:                "TimeOfDay",
	PrimitiveGeography:                "Geography",
	PrimitiveGeographyPoint:           "GeographyPoint",
	PrimitiveGeographyLineString:      "GeographyLineString",
	PrimitiveGeographyPolygon:         "GeographyPolygon",
	PrimitiveGeographyMultiPoint:      "GeographyMultiPoint",
	PrimitiveGeographyMultiLineString: "GeographyMultiLineString",
	PrimitiveGeographyMultiPolygon:    "GeographyMultiPolygon",
	PrimitiveGeographyCollection:      "GeographyCollection",
	PrimitiveGeometry:                 "Geometry",
	PrimitiveGeometryPoint:            "GeometryPoint",
	PrimitiveGeometryLineString:       "GeometryLineString",
	PrimitiveGeometryPolygon:          "GeometryPolygon",
	PrimitiveGeometryMultiPoint:       "GeometryMultiPoint",
	PrimitiveGeometryMultiLineString:  "GeometryMultiLineString",
	PrimitiveGeometryMultiPolygon:     "GeometryMultiPolygon",
	PrimitiveGeometryCollection:       "GeometryCollection",
}

// PrimitiveType is one of the built-in Edm.* primitive types.
type PrimitiveType struct {
	kind PrimitiveKind
	name string
}

var (
	primitivesByKind = make(map[PrimitiveKind]*PrimitiveType, len(primitiveNames))
	primitivesByName = make(map[string]*PrimitiveType, len(primitiveNames))
)

func init() {
	for kind, local := range primitiveNames {
		p := &PrimitiveType{kind: kind, name: "Edm." + local}
		primitivesByKind[kind] = p
		primitivesByName[p.name] = p
	}
}

func (p *PrimitiveType) Kind() TypeKind               { return KindPrimitive }
func (p *PrimitiveType) FullName() string             { return p.name }
func (p *PrimitiveType) PrimitiveKind() PrimitiveKind { return p.kind }

// PrimitiveTypeOf returns the shared primitive type for a kind, or nil for PrimitiveNone.
func PrimitiveTypeOf(kind PrimitiveKind) *PrimitiveType {
	return primitivesByKind[kind]
}

// LookupPrimitive finds a primitive type by its qualified name ("Edm.Int32").
func LookupPrimitive(name string) (*PrimitiveType, bool) {
	p, ok := primitivesByName[name]
	return p, ok
}

// IsPrimitiveShortName reports whether name is an unqualified primitive name ("Int32").
func IsPrimitiveShortName(name string) bool {
	_, ok := primitivesByName["Edm."+name]
	return ok && !strings.Contains(name, ".")
}

func (k PrimitiveKind) String() string {
	if name, ok := primitiveNames[k]; ok {
		return name
	}
	return "None"
}

// IsSpatial reports whether the kind is a geography or geometry kind.
func (k PrimitiveKind) IsSpatial() bool {
	return k >= PrimitiveGeography && k <= PrimitiveGeometryCollection
}

// IsGeography reports whether the kind belongs to the geography family.
func (k PrimitiveKind) IsGeography() bool {
	return k >= PrimitiveGeography && k <= PrimitiveGeographyCollection
}

// SpatialShape returns the GeoJSON geometry name for a spatial kind
// ("Point", "Polygon", ...); the abstract Geography and Geometry kinds
// return "".
func (k PrimitiveKind) SpatialShape() string {
	name := primitiveNames[k]
	switch {
	case !k.IsSpatial():
		return ""
	case strings.HasPrefix(name, "Geography"):
		name = strings.TrimPrefix(name, "Geography")
	default:
		name = strings.TrimPrefix(name, "Geometry")
	}
	if name == "Collection" {
		return "GeometryCollection"
	}
	return name
}

// IsIntegral reports whether the kind is an integer kind.
func (k PrimitiveKind) IsIntegral() bool {
	switch k {
	case PrimitiveByte, PrimitiveSByte, PrimitiveInt16, PrimitiveInt32, PrimitiveInt64:
		return true
	}
	return false
}
