// Package topojson reads and writes the arc-sharing topology encoding.
//
// Decoding resolves shared arcs into explicit per-feature coordinates;
// encoding writes every feature into one named GeometryCollection object,
// with optional quantization and delta-encoded arcs. Identical lines and
// rings, in either direction, share a single arc.
package topojson

import (
	"encoding/json"
	"errors"
)

// ErrMalformed is returned for documents that are not a valid topology.
var ErrMalformed = errors.New("topojson: malformed topology")

// DefaultLayer is the object name used when none is configured.
const DefaultLayer = "layer"

// Topology is the top level document.
type Topology struct {
	Type      string             `json:"type"`
	Transform *Transform         `json:"transform,omitempty"`
	BBox      []float64          `json:"bbox,omitempty"`
	Objects   map[string]*Object `json:"objects"`
	Arcs      [][][]float64      `json:"arcs"`
}

// Transform maps quantized integer positions back to coordinates.
type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// Object is a topology geometry. Coordinates and arcs keep their raw form
// since their nesting depends on Type.
type Object struct {
	Type        GeometryType    `json:"type"`
	ID          any             `json:"id,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Arcs        json.RawMessage `json:"arcs,omitempty"`
	Geometries  []*Object       `json:"geometries,omitempty"`
}

// GeometryType is an object type; the empty value encodes as null.
type GeometryType string

// Object types.
const (
	TypeNull               GeometryType = ""
	TypePoint              GeometryType = "Point"
	TypeMultiPoint         GeometryType = "MultiPoint"
	TypeLineString         GeometryType = "LineString"
	TypeMultiLineString    GeometryType = "MultiLineString"
	TypePolygon            GeometryType = "Polygon"
	TypeMultiPolygon       GeometryType = "MultiPolygon"
	TypeGeometryCollection GeometryType = "GeometryCollection"
)

// MarshalJSON writes null for geometry-less objects.
func (t GeometryType) MarshalJSON() ([]byte, error) {
	if t == TypeNull {
		return []byte("null"), nil
	}

	return json.Marshal(string(t))
}
