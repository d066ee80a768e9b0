package odata

import (
	"github.com/nlstn/go-odata-reader/internal/spatial"
)

// SpatialValue is a decoded GeoJSON value of an Edm.Geography* or
// Edm.Geometry* property.
type SpatialValue = spatial.Value

// Position is a GeoJSON coordinate tuple.
type Position = spatial.Position

var (
	// ErrInvalidGeoJSON is wrapped by reads of malformed spatial values.
	ErrInvalidGeoJSON = spatial.ErrInvalid
	// ErrSpatialTypeMismatch is wrapped when a GeoJSON type does not fit the declared type.
	ErrSpatialTypeMismatch = spatial.ErrTypeMismatch
)

// NewGeoJSONReader returns the built-in spatial reader. Custom readers can
// wrap it to post-process values, for example to reproject coordinates.
func NewGeoJSONReader() SpatialReader {
	return spatial.NewReader()
}

// SetSpatialReader replaces the reader used for spatial property values.
// nil restores the built-in GeoJSON reader.
//
// Example:
//
//	reader.SetSpatialReader(&validatingReader{next: odata.NewGeoJSONReader()})
func (r *Reader) SetSpatialReader(sr SpatialReader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spatial = sr
	r.logger.Info("Spatial reader configured", "custom", sr != nil)
	return nil
}
