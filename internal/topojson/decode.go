package topojson

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Decode parses a topology and expands it into a feature collection.
// Members of top level GeometryCollection objects become individual features;
// other top level objects become one feature each. Objects are visited in
// name order. The returned layer is the name of the first object.
func Decode(data []byte) (*geojson.FeatureCollection, string, error) {
	var topo Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return topo.ToFeatureCollection()
}

// ToFeatureCollection expands an already parsed topology.
func (t *Topology) ToFeatureCollection() (*geojson.FeatureCollection, string, error) {
	if t.Type != "Topology" {
		return nil, "", fmt.Errorf("%w: type %q", ErrMalformed, t.Type)
	}

	d := &decoder{topo: t}
	if err := d.decodeArcs(); err != nil {
		return nil, "", err
	}

	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	fc := geojson.NewFeatureCollection()
	for _, name := range names {
		obj := t.Objects[name]
		if obj == nil {
			continue
		}

		members := []*Object{obj}
		if obj.Type == TypeGeometryCollection {
			members = obj.Geometries
		}

		for i, m := range members {
			g, err := d.geometry(m)
			if err != nil {
				return nil, "", fmt.Errorf("object %q geometry %d: %w", name, i, err)
			}

			f := geojson.NewFeature(g)
			f.ID = m.ID
			for k, v := range m.Properties {
				f.Properties[k] = v
			}
			fc.Append(f)
		}
	}

	layer := ""
	if len(names) > 0 {
		layer = names[0]
	}

	return fc, layer, nil
}

type decoder struct {
	topo *Topology
	arcs [][]orb.Point
}

func (d *decoder) position(p []float64) (orb.Point, error) {
	if len(p) < 2 {
		return orb.Point{}, fmt.Errorf("%w: position with %d values", ErrMalformed, len(p))
	}

	pt := orb.Point{p[0], p[1]}
	if tr := d.topo.Transform; tr != nil {
		pt[0] = pt[0]*tr.Scale[0] + tr.Translate[0]
		pt[1] = pt[1]*tr.Scale[1] + tr.Translate[1]
	}

	return pt, nil
}

// decodeArcs resolves delta encoding and the quantization transform.
func (d *decoder) decodeArcs() error {
	d.arcs = make([][]orb.Point, len(d.topo.Arcs))

	for i, arc := range d.topo.Arcs {
		points := make([]orb.Point, 0, len(arc))
		var x, y float64

		for j, pos := range arc {
			if len(pos) < 2 {
				return fmt.Errorf("%w: arc %d position %d", ErrMalformed, i, j)
			}

			if tr := d.topo.Transform; tr != nil {
				x += pos[0]
				y += pos[1]
				points = append(points, orb.Point{
					x*tr.Scale[0] + tr.Translate[0],
					y*tr.Scale[1] + tr.Translate[1],
				})
				continue
			}

			points = append(points, orb.Point{pos[0], pos[1]})
		}

		d.arcs[i] = points
	}

	return nil
}

// arc returns the points of an arc reference; negative indexes are the
// one's complement of a reversed arc.
func (d *decoder) arc(ref int) ([]orb.Point, error) {
	idx := ref
	if ref < 0 {
		idx = ^ref
	}
	if idx >= len(d.arcs) {
		return nil, fmt.Errorf("%w: arc index %d out of range", ErrMalformed, ref)
	}

	src := d.arcs[idx]
	if ref >= 0 {
		return src, nil
	}

	rev := make([]orb.Point, len(src))
	for i, p := range src {
		rev[len(src)-1-i] = p
	}

	return rev, nil
}

// line stitches consecutive arcs, dropping the shared joint point.
func (d *decoder) line(refs []int) ([]orb.Point, error) {
	var out []orb.Point

	for i, ref := range refs {
		points, err := d.arc(ref)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(points) > 0 {
			points = points[1:]
		}
		out = append(out, points...)
	}

	return out, nil
}

func (d *decoder) rings(refs [][]int) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(refs))
	for _, r := range refs {
		ring, err := d.line(r)
		if err != nil {
			return nil, err
		}
		poly = append(poly, orb.Ring(ring))
	}

	return poly, nil
}

func (d *decoder) geometry(o *Object) (orb.Geometry, error) {
	switch o.Type {
	case TypeNull:
		return nil, nil

	case TypePoint:
		var pos []float64
		if err := unmarshal(o.Coordinates, &pos); err != nil {
			return nil, err
		}
		return d.position(pos)

	case TypeMultiPoint:
		var pos [][]float64
		if err := unmarshal(o.Coordinates, &pos); err != nil {
			return nil, err
		}
		mp := make(orb.MultiPoint, 0, len(pos))
		for _, p := range pos {
			pt, err := d.position(p)
			if err != nil {
				return nil, err
			}
			mp = append(mp, pt)
		}
		return mp, nil

	case TypeLineString:
		var refs []int
		if err := unmarshal(o.Arcs, &refs); err != nil {
			return nil, err
		}
		ls, err := d.line(refs)
		return orb.LineString(ls), err

	case TypeMultiLineString:
		var refs [][]int
		if err := unmarshal(o.Arcs, &refs); err != nil {
			return nil, err
		}
		mls := make(orb.MultiLineString, 0, len(refs))
		for _, r := range refs {
			ls, err := d.line(r)
			if err != nil {
				return nil, err
			}
			mls = append(mls, ls)
		}
		return mls, nil

	case TypePolygon:
		var refs [][]int
		if err := unmarshal(o.Arcs, &refs); err != nil {
			return nil, err
		}
		return d.rings(refs)

	case TypeMultiPolygon:
		var refs [][][]int
		if err := unmarshal(o.Arcs, &refs); err != nil {
			return nil, err
		}
		mp := make(orb.MultiPolygon, 0, len(refs))
		for _, r := range refs {
			poly, err := d.rings(r)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil

	case TypeGeometryCollection:
		col := make(orb.Collection, 0, len(o.Geometries))
		for _, m := range o.Geometries {
			g, err := d.geometry(m)
			if err != nil {
				return nil, err
			}
			if g != nil {
				col = append(col, g)
			}
		}
		return col, nil
	}

	return nil, fmt.Errorf("%w: unknown geometry type %q", ErrMalformed, o.Type)
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing coordinates or arcs", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return nil
}
