package topojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/mapalign/internal/geo"
)

// Options control topology encoding.
type Options struct {
	// Layer is the name of the single output object.
	Layer string
	// Quantization is the number of integer steps per axis; values below 2
	// disable quantization and keep full precision coordinates.
	Quantization int
}

// Encode converts a feature collection into a topology with one named
// GeometryCollection object holding every feature.
func Encode(fc *geojson.FeatureCollection, opts Options) (*Topology, error) {
	layer := opts.Layer
	if layer == "" {
		layer = DefaultLayer
	}

	e := &encoder{index: make(map[string]int)}

	extent, _, extentErr := geo.Extent(fc)
	switch {
	case extentErr == nil:
		if opts.Quantization > 1 {
			e.transform = quantizeTransform(extent, opts.Quantization)
		}
	case errors.Is(extentErr, geo.ErrNoCoordinates):
	default:
		return nil, extentErr
	}

	collection := &Object{
		Type:       TypeGeometryCollection,
		Geometries: make([]*Object, 0, len(fc.Features)),
	}

	for i, f := range fc.Features {
		obj, err := e.geometry(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		obj.ID = f.ID
		if len(f.Properties) > 0 {
			obj.Properties = map[string]any(f.Properties)
		}
		collection.Geometries = append(collection.Geometries, obj)
	}

	topo := &Topology{
		Type:      "Topology",
		Transform: e.transform,
		Objects:   map[string]*Object{layer: collection},
		Arcs:      e.output(),
	}
	if extentErr == nil {
		topo.BBox = []float64{extent.Left, extent.Bottom, extent.Right, extent.Top}
	}

	return topo, nil
}

// Marshal encodes fc and serializes the topology.
func Marshal(fc *geojson.FeatureCollection, opts Options) ([]byte, error) {
	topo, err := Encode(fc, opts)
	if err != nil {
		return nil, err
	}

	return json.Marshal(topo)
}

func quantizeTransform(b geo.Bounds, q int) *Transform {
	kx := b.Width() / float64(q-1)
	ky := b.Height() / float64(q-1)
	if kx == 0 {
		kx = 1
	}
	if ky == 0 {
		ky = 1
	}

	return &Transform{
		Scale:     [2]float64{kx, ky},
		Translate: [2]float64{b.Left, b.Bottom},
	}
}

type encoder struct {
	transform *Transform
	arcs      [][]orb.Point
	index     map[string]int
}

func (e *encoder) quantize(p orb.Point) orb.Point {
	if e.transform == nil {
		return p
	}

	return orb.Point{
		math.Round((p[0] - e.transform.Translate[0]) / e.transform.Scale[0]),
		math.Round((p[1] - e.transform.Translate[1]) / e.transform.Scale[1]),
	}
}

func arcKey(points []orb.Point) string {
	var sb strings.Builder
	for _, p := range points {
		sb.WriteString(strconv.FormatFloat(p[0], 'g', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p[1], 'g', -1, 64))
		sb.WriteByte(';')
	}

	return sb.String()
}

// arc registers a line or ring and returns its arc reference, reusing an
// existing arc when the same sequence is already known in either direction.
func (e *encoder) arc(points []orb.Point) int {
	q := make([]orb.Point, 0, len(points))
	for _, p := range points {
		qp := e.quantize(p)
		if e.transform != nil && len(q) > 0 && q[len(q)-1] == qp {
			continue
		}
		q = append(q, qp)
	}
	if len(q) == 1 {
		q = append(q, q[0])
	}

	key := arcKey(q)
	if idx, ok := e.index[key]; ok {
		return idx
	}

	rev := make([]orb.Point, len(q))
	for i, p := range q {
		rev[len(q)-1-i] = p
	}
	if idx, ok := e.index[arcKey(rev)]; ok {
		return ^idx
	}

	idx := len(e.arcs)
	e.arcs = append(e.arcs, q)
	e.index[key] = idx

	return idx
}

func (e *encoder) rings(poly orb.Polygon) [][]int {
	refs := make([][]int, 0, len(poly))
	for _, r := range poly {
		refs = append(refs, []int{e.arc(r)})
	}

	return refs
}

func (e *encoder) geometry(g orb.Geometry) (*Object, error) {
	var (
		obj  = &Object{}
		data any
		arcs bool
	)

	switch g := g.(type) {
	case nil:
		return obj, nil

	case orb.Point:
		obj.Type = TypePoint
		q := e.quantize(g)
		data = []float64{q[0], q[1]}

	case orb.MultiPoint:
		obj.Type = TypeMultiPoint
		pos := make([][]float64, 0, len(g))
		for _, p := range g {
			q := e.quantize(p)
			pos = append(pos, []float64{q[0], q[1]})
		}
		data = pos

	case orb.LineString:
		obj.Type, arcs = TypeLineString, true
		data = []int{e.arc(g)}

	case orb.MultiLineString:
		obj.Type, arcs = TypeMultiLineString, true
		refs := make([][]int, 0, len(g))
		for _, ls := range g {
			refs = append(refs, []int{e.arc(ls)})
		}
		data = refs

	case orb.Ring:
		obj.Type, arcs = TypePolygon, true
		data = e.rings(orb.Polygon{g})

	case orb.Polygon:
		obj.Type, arcs = TypePolygon, true
		data = e.rings(g)

	case orb.MultiPolygon:
		obj.Type, arcs = TypeMultiPolygon, true
		refs := make([][][]int, 0, len(g))
		for _, poly := range g {
			refs = append(refs, e.rings(poly))
		}
		data = refs

	case orb.Bound:
		return e.geometry(g.ToPolygon())

	case orb.Collection:
		obj.Type = TypeGeometryCollection
		obj.Geometries = make([]*Object, 0, len(g))
		for _, c := range g {
			member, err := e.geometry(c)
			if err != nil {
				return nil, err
			}
			obj.Geometries = append(obj.Geometries, member)
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("topojson: unsupported geometry %T", g)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if arcs {
		obj.Arcs = raw
	} else {
		obj.Coordinates = raw
	}

	return obj, nil
}

// output returns the arc table, delta encoded when quantized.
func (e *encoder) output() [][][]float64 {
	out := make([][][]float64, 0, len(e.arcs))

	for _, arc := range e.arcs {
		positions := make([][]float64, 0, len(arc))
		var prev orb.Point

		for i, p := range arc {
			if e.transform != nil && i > 0 {
				positions = append(positions, []float64{p[0] - prev[0], p[1] - prev[1]})
			} else {
				positions = append(positions, []float64{p[0], p[1]})
			}
			prev = p
		}

		out = append(out, positions)
	}

	return out
}
