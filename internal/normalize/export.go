// Package normalize turns raw layer exports into a validated, deduplicated,
// reprojected feature collection.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/mapalign/internal/geo"
)

// ErrMalformed is returned when an export does not have the expected shape.
var ErrMalformed = errors.New("normalize: malformed export")

// Layer is one record of a layer export: optional metadata plus a nested
// feature collection.
type Layer struct {
	ID      any                        `json:"id"`
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
	Type    string                     `json:"type"`
	Tooltip string                     `json:"tooltip"`
	Name    string                     `json:"name"`
}

// DisplayID renders the layer id for diagnostics.
func (l Layer) DisplayID() string {
	return geo.PropertyString(l.ID)
}

// ReadExport loads a layer export file.
func ReadExport(path string) ([]Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	layers, err := ParseExport(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return layers, nil
}

// ParseExport decodes a layer export: a JSON array of layer records.
func ParseExport(data []byte) ([]Layer, error) {
	var layers []Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return layers, nil
}
