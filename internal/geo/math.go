package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// ErrNoCoordinates is returned when a document holds no finite coordinate.
var ErrNoCoordinates = errors.New("geo: no valid coordinates found")

// Bounds is an axis aligned extent in the coordinate space of its input.
type Bounds struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

// Width of the extent.
func (b Bounds) Width() float64 { return b.Right - b.Left }

// Height of the extent.
func (b Bounds) Height() float64 { return b.Top - b.Bottom }

// Center of the extent.
func (b Bounds) Center() orb.Point {
	return orb.Point{(b.Left + b.Right) / 2, (b.Bottom + b.Top) / 2}
}

// Pad grows the extent symmetrically by fraction p of its width and height
// on each side, so the padded width is Width*(1+2p).
func (b Bounds) Pad(p float64) Bounds {
	dx := b.Width() * p
	dy := b.Height() * p

	return Bounds{
		Left:   b.Left - dx,
		Bottom: b.Bottom - dy,
		Right:  b.Right + dx,
		Top:    b.Top + dy,
	}
}

// Corners returns the viewport form [[left, bottom], [right, top]].
func (b Bounds) Corners() [2][2]float64 {
	return [2][2]float64{{b.Left, b.Bottom}, {b.Right, b.Top}}
}

// Extent walks every feature geometry and returns the extent of all finite
// coordinates with the number of coordinates that contributed.
// Non-finite coordinates are skipped.
func Extent(fc *geojson.FeatureCollection) (Bounds, int, error) {
	var (
		b     Bounds
		count int
	)

	for _, f := range fc.Features {
		EachPoint(f.Geometry, func(p orb.Point) {
			if !Finite(p) {
				return
			}
			if count == 0 {
				b = Bounds{Left: p[0], Bottom: p[1], Right: p[0], Top: p[1]}
			} else {
				b.Left = min(b.Left, p[0])
				b.Bottom = min(b.Bottom, p[1])
				b.Right = max(b.Right, p[0])
				b.Top = max(b.Top, p[1])
			}
			count++
		})
	}

	if count == 0 {
		return Bounds{}, 0, ErrNoCoordinates
	}

	return b, count, nil
}

// ToMercator projects lon/lat degrees into spherical mercator metres.
func ToMercator(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(p)
}

// FromMercator converts spherical mercator metres back to lon/lat degrees.
func FromMercator(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}

// Reprojection places planar source coordinates onto the globe.
type Reprojection struct {
	// Center is the lon/lat the planar extent centroid is moved to.
	Center orb.Point
	// Shift is a final lon/lat offset applied after reprojection.
	Shift orb.Point
	// Scale is metres per source unit.
	Scale float64
}

// Apply reprojects every feature of fc in place and returns the planar
// centroid that was used as origin.
//
// Order matters: coordinates are scaled in the metric plane, converted back
// to degrees, and only then shifted. Scaling in degrees would stretch the
// data unevenly by latitude.
func (r Reprojection) Apply(fc *geojson.FeatureCollection) (orb.Point, error) {
	if r.Scale <= 0 {
		return orb.Point{}, fmt.Errorf("geo: reprojection scale must be > 0, got %g", r.Scale)
	}

	extent, _, err := Extent(fc)
	if err != nil {
		return orb.Point{}, err
	}

	origin := extent.Center()
	center := ToMercator(r.Center)

	fn := func(p orb.Point) orb.Point {
		metric := orb.Point{
			center[0] + (p[0]-origin[0])*r.Scale,
			center[1] + (p[1]-origin[1])*r.Scale,
		}
		ll := FromMercator(metric)
		return orb.Point{ll[0] + r.Shift[0], ll[1] + r.Shift[1]}
	}

	for _, f := range fc.Features {
		f.Geometry = Map(f.Geometry, fn)
	}

	return origin, nil
}
