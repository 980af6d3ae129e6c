package topojson

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const sampleTopology = `{
  "type": "Topology",
  "transform": {"scale": [0.5, 2], "translate": [10, 20]},
  "objects": {
    "example": {
      "type": "GeometryCollection",
      "geometries": [
        {"type": "Point", "id": 7, "properties": {"name": "p"}, "coordinates": [4, 5]},
        {"type": "LineString", "properties": {"name": "l"}, "arcs": [0]},
        {"type": "Polygon", "properties": {"name": "a"}, "arcs": [[-2]]},
        {"type": null, "properties": {"name": "n"}}
      ]
    }
  },
  "arcs": [
    [[0, 0], [1, 1], [1, -1]],
    [[0, 0], [0, 2], [2, 0], [0, -2], [-2, 0]]
  ]
}`

func TestDecode(t *testing.T) {
	fc, layer, err := Decode([]byte(sampleTopology))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if layer != "example" {
		t.Fatalf("layer = %q, want example", layer)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("decoded %d features, want 4", len(fc.Features))
	}

	p := fc.Features[0]
	if p.Geometry != (orb.Point{12, 30}) {
		t.Fatalf("point = %v, want [12 30]", p.Geometry)
	}
	if p.Properties["name"] != "p" || p.ID != float64(7) {
		t.Fatalf("point properties = %v id = %v", p.Properties, p.ID)
	}

	ls := fc.Features[1].Geometry.(orb.LineString)
	want := orb.LineString{{10, 20}, {10.5, 22}, {11, 20}}
	if len(ls) != len(want) {
		t.Fatalf("line = %v, want %v", ls, want)
	}
	for i := range want {
		if ls[i] != want[i] {
			t.Fatalf("line = %v, want %v", ls, want)
		}
	}

	poly := fc.Features[2].Geometry.(orb.Polygon)
	ring := poly[0]
	// reversed arc: (0,0) (2,0) (2,2) (0,2) (0,0) in quantized units
	if len(ring) != 5 || ring[1] != (orb.Point{11, 20}) || ring[2] != (orb.Point{11, 24}) {
		t.Fatalf("ring = %v", ring)
	}

	if fc.Features[3].Geometry != nil || fc.Features[3].Properties["name"] != "n" {
		t.Fatalf("null geometry feature = %+v", fc.Features[3])
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"wrong type":     `{"type": "FeatureCollection", "features": []}`,
		"arc range":      `{"type": "Topology", "objects": {"o": {"type": "LineString", "arcs": [3]}}, "arcs": []}`,
		"unknown type":   `{"type": "Topology", "objects": {"o": {"type": "Circle"}}, "arcs": []}`,
		"missing coords": `{"type": "Topology", "objects": {"o": {"type": "Point"}}, "arcs": []}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode([]byte(doc)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func sampleCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	pt := geojson.NewFeature(orb.Point{30.1234567, 50.7654321})
	pt.Properties["name"] = "Town"
	fc.Append(pt)

	road := geojson.NewFeature(orb.LineString{{30, 50}, {30.5, 50.25}, {31, 51}})
	road.Properties["name"] = "Road"
	fc.Append(road)

	area := geojson.NewFeature(orb.Polygon{{{30, 50}, {31, 50}, {31, 51}, {30, 51}, {30, 50}}})
	area.Properties["name"] = "Area"
	fc.Append(area)

	fc.Append(geojson.NewFeature(orb.Collection{orb.Point{30.2, 50.2}, orb.LineString{{30, 50}, {31, 51}}}))

	return fc
}

func TestEncodeRoundTrip(t *testing.T) {
	src := sampleCollection()

	data, err := Marshal(src, Options{Layer: "locations", Quantization: 1_000_000})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	fc, layer, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if layer != "locations" {
		t.Fatalf("layer = %q, want locations", layer)
	}
	if len(fc.Features) != len(src.Features) {
		t.Fatalf("decoded %d features, want %d", len(fc.Features), len(src.Features))
	}

	// one quantization step on a one degree extent
	tol := 1.0 / 999_999

	for i, f := range fc.Features {
		var got, want []orb.Point
		collect(f.Geometry, &got)
		collect(src.Features[i].Geometry, &want)

		if f.Geometry.GeoJSONType() != src.Features[i].Geometry.GeoJSONType() {
			t.Fatalf("feature %d type = %s", i, f.Geometry.GeoJSONType())
		}
		if len(got) != len(want) {
			t.Fatalf("feature %d has %d points, want %d", i, len(got), len(want))
		}
		for j := range want {
			if math.Abs(got[j][0]-want[j][0]) > tol || math.Abs(got[j][1]-want[j][1]) > tol {
				t.Fatalf("feature %d point %d = %v, want %v", i, j, got[j], want[j])
			}
		}
		if f.Properties["name"] != src.Features[i].Properties["name"] {
			t.Fatalf("feature %d name = %v", i, f.Properties["name"])
		}
	}
}

func collect(g orb.Geometry, out *[]orb.Point) {
	switch g := g.(type) {
	case orb.Point:
		*out = append(*out, g)
	case orb.LineString:
		*out = append(*out, g...)
	case orb.Polygon:
		for _, r := range g {
			*out = append(*out, r...)
		}
	case orb.Collection:
		for _, c := range g {
			collect(c, out)
		}
	}
}

func TestEncodeSharesArcs(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	line := orb.LineString{{0, 0}, {1, 1}, {2, 0}}
	reversed := orb.LineString{{2, 0}, {1, 1}, {0, 0}}

	fc.Append(geojson.NewFeature(line))
	fc.Append(geojson.NewFeature(line.Clone()))
	fc.Append(geojson.NewFeature(reversed))

	topo, err := Encode(fc, Options{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(topo.Arcs) != 1 {
		t.Fatalf("encoded %d arcs, want 1", len(topo.Arcs))
	}

	refs := topo.Objects[DefaultLayer].Geometries
	if string(refs[0].Arcs) != "[0]" || string(refs[1].Arcs) != "[0]" || string(refs[2].Arcs) != "[-1]" {
		t.Fatalf("arc refs = %s %s %s", refs[0].Arcs, refs[1].Arcs, refs[2].Arcs)
	}

	data, err := json.Marshal(topo)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := back.Features[2].Geometry.(orb.LineString)
	if got[0] != (orb.Point{2, 0}) || got[2] != (orb.Point{0, 0}) {
		t.Fatalf("reversed line = %v", got)
	}
}

func TestEncodeNullGeometry(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(nil)
	f.Properties["name"] = "nowhere"
	fc.Append(f)

	data, err := Marshal(fc, Options{Quantization: 1000})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"type":null`) {
		t.Fatalf("null geometry not encoded as null type: %s", data)
	}

	back, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if back.Features[0].Geometry != nil || back.Features[0].Properties["name"] != "nowhere" {
		t.Fatalf("decoded = %+v", back.Features[0])
	}
}
