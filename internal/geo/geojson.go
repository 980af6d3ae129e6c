// Package geo holds geometry helpers shared by the pipeline stages:
// coordinate walking, geometry classification and signatures, extents,
// and the planar-to-geographic reprojection.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// Coarse geometry kinds used for summaries.
const (
	KindPoint      = "point"
	KindLineString = "linestring"
	KindPolygon    = "polygon"
	KindUnknown    = "unknown"
)

// Kind classifies a geometry into a coarse label.
func Kind(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return KindPoint
	case orb.LineString, orb.MultiLineString:
		return KindLineString
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		return KindPolygon
	default:
		return KindUnknown
	}
}

// EachPoint calls fn for every coordinate of g, depth first.
// Dispatch is by geometry type, never by array depth.
func EachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			EachPoint(ls, fn)
		}
	case orb.Polygon:
		for _, r := range g {
			EachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			EachPoint(p, fn)
		}
	case orb.Collection:
		for _, c := range g {
			EachPoint(c, fn)
		}
	case orb.Bound:
		fn(g.Min)
		fn(g.Max)
	}
}

// Map returns a copy of g with fn applied to every coordinate.
// The source geometry is left untouched.
func Map(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	if g == nil {
		return nil
	}

	return project.Geometry(orb.Clone(g), orb.Projection(fn))
}

// Signature is the exact serialization of a geometry: its GeoJSON type
// followed by the JSON encoding of its coordinates. Two geometries share a
// signature only if every coordinate matches bit for bit.
func Signature(g orb.Geometry) string {
	if g == nil {
		return "null"
	}

	data, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		// non-finite coordinates have no JSON form
		return g.GeoJSONType() + ":" + fmt.Sprint(g)
	}

	return g.GeoJSONType() + ":" + string(data)
}

// Finite reports whether both axes of p are finite numbers.
func Finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) &&
		!math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

// PropertyString renders a scalar property value: strings are trimmed,
// numbers formatted without exponent. Anything else is empty.
func PropertyString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	}

	return ""
}
