// Package bounds computes padded viewport bounds for a geometry document.
package bounds

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/mapalign/internal/geo"
)

// Options configure the bounds calculation.
type Options struct {
	// Padding is the fraction of width and height added on each side.
	Padding float64
}

// Result holds the raw and padded extents.
type Result struct {
	Raw         geo.Bounds
	Padded      geo.Bounds
	Coordinates int
}

// Viewport is the two-corner form [[left, bottom], [right, top]].
func (r *Result) Viewport() [2][2]float64 {
	return r.Padded.Corners()
}

// Compute walks every coordinate of fc and pads the resulting extent.
// Non-finite coordinates are skipped; a document without any valid
// coordinate is an error.
func Compute(fc *geojson.FeatureCollection, opts Options) (*Result, error) {
	if opts.Padding < 0 {
		return nil, fmt.Errorf("bounds: padding must be >= 0, got %g", opts.Padding)
	}

	raw, count, err := geo.Extent(fc)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Raw:         raw,
		Padded:      raw.Pad(opts.Padding),
		Coordinates: count,
	}

	log.Debug().
		Int("coordinates", count).
		Float64("padding", opts.Padding).
		Msg("Extent computed")

	return res, nil
}
