// Package tps implements a thin-plate-spline warp fitted to control points.
//
// For n control points the (n+3)×(n+3) system
//
//	| K + λI  P | |w|   |v|
//	| Pᵀ      0 | |a| = |0|
//
// is solved once per output axis, where K holds U(r²) = r²·ln(r²) between
// source points and P the rows [1 x y]. The warp at q is
// a₀ + a₁x + a₂y + Σ wᵢ·U(|q - pᵢ|²).
package tps

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/mapalign/internal/geo"
)

var (
	// ErrSingular is returned when the control points do not determine a warp.
	ErrSingular = errors.New("tps: singular system, control points are collinear or duplicated; " +
		"add regularization (lambda) or better distributed control points")

	// ErrTooFewPoints is returned for fewer than three control points.
	ErrTooFewPoints = fmt.Errorf("%w: at least 3 non-collinear control points are required", ErrSingular)
)

// ControlPoint is a known correspondence between the current and the
// corrected coordinate space.
type ControlPoint struct {
	Name   string
	Source orb.Point
	Target orb.Point
}

// Options configure the fit.
type Options struct {
	// Lambda is added to the kernel diagonal; 0 interpolates exactly.
	Lambda float64
}

// Spline is a fitted warp function.
type Spline struct {
	sources []orb.Point // normalized
	wx, wy  []float64   // n kernel weights followed by the affine terms
	center  orb.Point
	scale   float64
}

// kernel is the radial basis U(r²) = r²·ln(r²), with U(0) = 0.
func kernel(r2 float64) float64 {
	if r2 == 0 {
		return 0
	}

	return r2 * math.Log(r2)
}

func dist2(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

// Fit solves the spline for the given control points.
//
// Source coordinates are centered and scaled to unit RMS radius before the
// system is built. The interpolant is invariant under that similarity and
// lambda is rescaled by the squared factor, so the fitted function is the
// one defined on the raw coordinates.
func Fit(points []ControlPoint, opts Options) (*Spline, error) {
	n := len(points)
	if n < 3 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewPoints, n)
	}
	if opts.Lambda < 0 || math.IsNaN(opts.Lambda) {
		return nil, fmt.Errorf("tps: lambda must be >= 0, got %g", opts.Lambda)
	}
	for _, cp := range points {
		if !geo.Finite(cp.Source) || !geo.Finite(cp.Target) {
			return nil, fmt.Errorf("tps: control point %q has non-finite coordinates", cp.Name)
		}
	}

	s := &Spline{sources: make([]orb.Point, n)}
	s.normalize(points)

	lambda := opts.Lambda * s.scale * s.scale
	size := n + 3

	a := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
	}
	bx := make([]float64, size)
	by := make([]float64, size)

	for i, p := range s.sources {
		for j := i + 1; j < n; j++ {
			u := kernel(dist2(p, s.sources[j]))
			a[i][j] = u
			a[j][i] = u
		}
		a[i][i] = lambda

		a[i][n], a[i][n+1], a[i][n+2] = 1, p[0], p[1]
		a[n][i], a[n+1][i], a[n+2][i] = 1, p[0], p[1]

		bx[i] = points[i].Target[0]
		by[i] = points[i].Target[1]
	}

	sol, err := solve(a, bx, by)
	if err != nil {
		return nil, err
	}
	s.wx, s.wy = sol[0], sol[1]

	return s, nil
}

func (s *Spline) normalize(points []ControlPoint) {
	n := float64(len(points))
	for _, cp := range points {
		s.center[0] += cp.Source[0] / n
		s.center[1] += cp.Source[1] / n
	}

	var ss float64
	for _, cp := range points {
		ss += dist2(cp.Source, s.center)
	}

	s.scale = 1
	if rms := math.Sqrt(ss / n); rms > 0 {
		s.scale = 1 / rms
	}

	for i, cp := range points {
		s.sources[i] = s.local(cp.Source)
	}
}

func (s *Spline) local(p orb.Point) orb.Point {
	return orb.Point{(p[0] - s.center[0]) * s.scale, (p[1] - s.center[1]) * s.scale}
}

// Transform evaluates the warp at p.
func (s *Spline) Transform(p orb.Point) orb.Point {
	q := s.local(p)
	n := len(s.sources)

	x := s.wx[n] + s.wx[n+1]*q[0] + s.wx[n+2]*q[1]
	y := s.wy[n] + s.wy[n+1]*q[0] + s.wy[n+2]*q[1]

	for i, src := range s.sources {
		u := kernel(dist2(q, src))
		x += s.wx[i] * u
		y += s.wy[i] * u
	}

	return orb.Point{x, y}
}

// Residual is the fit error at one control point.
type Residual struct {
	Name   string
	Target orb.Point
	Fitted orb.Point
	Error  float64
}

// Report summarizes how well the spline reproduces its control points.
type Report struct {
	Points []Residual
	RMSE   float64
	Max    float64
}

// Residuals maps every control source through the spline and measures the
// distance to its specified target.
func (s *Spline) Residuals(points []ControlPoint) Report {
	r := Report{Points: make([]Residual, 0, len(points))}

	var sum float64
	for _, cp := range points {
		fitted := s.Transform(cp.Source)
		d := math.Sqrt(dist2(fitted, cp.Target))

		r.Points = append(r.Points, Residual{
			Name:   cp.Name,
			Target: cp.Target,
			Fitted: fitted,
			Error:  d,
		})
		sum += d * d
		r.Max = max(r.Max, d)
	}
	if len(points) > 0 {
		r.RMSE = math.Sqrt(sum / float64(len(points)))
	}

	return r
}

// WarpCollection returns a copy of fc with every coordinate warped.
// Properties, ids, nesting and geometry kinds are preserved.
func WarpCollection(fc *geojson.FeatureCollection, s *Spline) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()

	for _, f := range fc.Features {
		w := geojson.NewFeature(geo.Map(f.Geometry, s.Transform))
		w.ID = f.ID
		for k, v := range f.Properties {
			w.Properties[k] = v
		}
		out.Append(w)
	}

	return out
}
