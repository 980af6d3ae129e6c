package normalize

import (
	"errors"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/mapalign/internal/geo"
)

const scenario = `[
  {"id": 1, "geojson": {"type": "FeatureCollection", "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [100, 200]},
     "properties": {"name": "Keep", "type": "town"}}
  ]}},
  {"id": "second", "geojson": {"type": "FeatureCollection", "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [100, 200]},
     "properties": {"name": "Keep", "type": "town", "search": "Keeptown"}}
  ]}}
]`

func TestRunScenario(t *testing.T) {
	layers, err := ParseExport([]byte(scenario))
	if err != nil {
		t.Fatalf("ParseExport() error = %v", err)
	}

	res, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Collection.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(res.Collection.Features))
	}
	f := res.Collection.Features[0]
	if f.Properties["name"] != "Keep" {
		t.Fatalf("name = %v", f.Properties["name"])
	}
	if !strings.Contains(f.Properties.MustString("alias", ""), "Keeptown") {
		t.Fatalf("alias = %v, want Keeptown", f.Properties["alias"])
	}
	if res.Merged != 1 {
		t.Fatalf("merged = %d, want 1", res.Merged)
	}
	if res.Kinds[geo.KindPoint] != 1 || res.Types["town"] != 1 {
		t.Fatalf("summary kinds=%v types=%v", res.Kinds, res.Types)
	}
}

func TestRunCollectsEveryIssue(t *testing.T) {
	export := `[
	  {"id": "a", "tooltip": "Named by tooltip", "geojson": {"type": "FeatureCollection", "features": [
	    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]}, "properties": {}},
	    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [2, 2]}, "properties": {"type": "town"}}
	  ]}},
	  {"id": "b", "geojson": {"type": "FeatureCollection", "features": [
	    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [3, 3]}, "properties": {"name": "ok", "type": "town"}},
	    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}, "properties": {"name": "  ", "type": "road"}}
	  ]}}
	]`

	layers, err := ParseExport([]byte(export))
	if err != nil {
		t.Fatalf("ParseExport() error = %v", err)
	}

	res, err := Run(layers, Options{RequireType: true})
	if res != nil {
		t.Fatal("Run() returned a result despite validation failures")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want ValidationError", err)
	}
	if len(verr.Issues) != 2 {
		t.Fatalf("got %d issues, want 2: %v", len(verr.Issues), verr.Issues)
	}

	first, second := verr.Issues[0], verr.Issues[1]
	if first.Layer != 0 || first.Feature != 0 || first.LayerID != "a" || first.Tooltip != "Named by tooltip" {
		t.Fatalf("first issue = %+v", first)
	}
	if strings.Join(first.Missing, ",") != "type" {
		t.Fatalf("first issue missing = %v", first.Missing)
	}
	if second.Layer != 1 || second.Feature != 1 || second.LayerID != "b" || second.Missing[0] != "name" {
		t.Fatalf("second issue = %+v", second)
	}
	if !strings.Contains(err.Error(), Marker) {
		t.Fatalf("error %q lacks marker", err)
	}
}

func TestRunAllowsMissingType(t *testing.T) {
	layers := []Layer{{
		GeoJSON: fcOf(feature(orb.Point{1, 1}, geojson.Properties{"name": "x"})),
	}}

	res, err := Run(layers, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := res.Collection.Features[0].Properties["type"]; ok {
		t.Fatal("empty type property was kept")
	}
}

func TestNamePriority(t *testing.T) {
	layers := []Layer{
		{Tooltip: "Tip", Name: "LayerName", GeoJSON: fcOf(
			feature(orb.Point{1, 1}, geojson.Properties{"name": "Own", "type": "a"}),
			feature(orb.Point{2, 2}, geojson.Properties{"type": "a"}),
		)},
		{Name: "LayerName", GeoJSON: fcOf(
			feature(orb.Point{3, 3}, geojson.Properties{"type": "a"}),
		)},
	}

	res, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := res.Collection.Features
	if got[0].Properties["name"] != "Own" || got[0].Properties["alias"] != "Tip" {
		t.Fatalf("feature 0 = %v", got[0].Properties)
	}
	if got[1].Properties["name"] != "Tip" {
		t.Fatalf("feature 1 = %v", got[1].Properties)
	}
	if _, ok := got[1].Properties["alias"]; ok {
		t.Fatalf("tooltip equal to name became an alias: %v", got[1].Properties)
	}
	if got[2].Properties["name"] != "LayerName" {
		t.Fatalf("feature 2 = %v", got[2].Properties)
	}
}

func TestStripEmpty(t *testing.T) {
	layers := []Layer{{GeoJSON: fcOf(feature(orb.Point{1, 1}, geojson.Properties{
		"name":   "x",
		"type":   "t",
		"nil":    nil,
		"blank":  "   ",
		"empty":  "",
		"false":  false,
		"zero":   0.0,
		"spaced": " kept ",
	}))}}

	res, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	props := res.Collection.Features[0].Properties
	for _, k := range []string{"nil", "blank", "empty", "alias"} {
		if _, ok := props[k]; ok {
			t.Errorf("property %q kept", k)
		}
	}
	for _, k := range []string{"false", "zero", "spaced"} {
		if _, ok := props[k]; !ok {
			t.Errorf("property %q dropped", k)
		}
	}
}

func TestAliasUnionIsOrderIndependent(t *testing.T) {
	a := feature(orb.Point{5, 5}, geojson.Properties{"name": "Fort", "type": "t", "alias": "North Fort, Old Fort"})
	b := feature(orb.Point{5, 5}, geojson.Properties{"name": "Fort", "type": "t", "alias": "Old Fort", "search": "Fortress"})

	aliasSet := func(first, second *geojson.Feature) []string {
		res, err := Run([]Layer{{GeoJSON: fcOf(first, second)}}, Options{RequireType: true})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(res.Collection.Features) != 1 {
			t.Fatalf("got %d features, want 1", len(res.Collection.Features))
		}
		parts := strings.Split(res.Collection.Features[0].Properties.MustString("alias"), AliasSeparator)
		sort.Strings(parts)
		return parts
	}

	ab := aliasSet(a, b)
	ba := aliasSet(b, a)
	want := []string{"Fortress", "North Fort", "Old Fort"}

	if strings.Join(ab, "|") != strings.Join(want, "|") || strings.Join(ba, "|") != strings.Join(want, "|") {
		t.Fatalf("alias sets ab=%v ba=%v, want %v", ab, ba, want)
	}
}

func TestNearDuplicatesAreKept(t *testing.T) {
	layers := []Layer{{GeoJSON: fcOf(
		feature(orb.Point{1, 1}, geojson.Properties{"name": "A", "type": "t"}),
		feature(orb.Point{1, 1.000001}, geojson.Properties{"name": "A", "type": "t"}),
		feature(orb.Point{1, 1}, geojson.Properties{"name": "B", "type": "t"}),
	)}}

	res, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Collection.Features) != 3 || res.Merged != 0 {
		t.Fatalf("got %d features, %d merged", len(res.Collection.Features), res.Merged)
	}
}

func TestDedupIdempotent(t *testing.T) {
	layers, err := ParseExport([]byte(scenario))
	if err != nil {
		t.Fatalf("ParseExport() error = %v", err)
	}

	first, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	second, err := Run([]Layer{{GeoJSON: first.Collection}}, Options{RequireType: true})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second.Merged != 0 {
		t.Fatalf("second run merged %d features", second.Merged)
	}
	if len(second.Collection.Features) != len(first.Collection.Features) {
		t.Fatalf("feature count changed: %d -> %d", len(first.Collection.Features), len(second.Collection.Features))
	}
	if second.Collection.Features[0].Properties["alias"] != first.Collection.Features[0].Properties["alias"] {
		t.Fatalf("alias changed: %v -> %v",
			first.Collection.Features[0].Properties["alias"],
			second.Collection.Features[0].Properties["alias"])
	}
}

func TestRunReprojects(t *testing.T) {
	layers := []Layer{{GeoJSON: fcOf(
		feature(orb.Point{0, 0}, geojson.Properties{"name": "sw", "type": "t"}),
		feature(orb.Point{1000, 1000}, geojson.Properties{"name": "ne", "type": "t"}),
		feature(orb.Point{500, 500}, geojson.Properties{"name": "mid", "type": "t"}),
	)}}

	res, err := Run(layers, Options{
		RequireType: true,
		Reproject:   true,
		Reprojection: geo.Reprojection{
			Center: orb.Point{24, 45},
			Shift:  orb.Point{0.01, 0},
			Scale:  1,
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mid := res.Collection.Features[2].Geometry.(orb.Point)
	if math.Abs(mid[0]-24.01) > 1e-9 || math.Abs(mid[1]-45) > 1e-9 {
		t.Fatalf("centroid feature = %v, want [24.01 45]", mid)
	}

	sw := res.Collection.Features[0].Geometry.(orb.Point)
	if sw[0] >= mid[0] || sw[1] >= mid[1] {
		t.Fatalf("south-west feature = %v not south-west of %v", sw, mid)
	}
}

func TestParseExportMalformed(t *testing.T) {
	for _, doc := range []string{`{"type": "FeatureCollection"}`, `[{"geojson": 5}]`, `nope`} {
		if _, err := ParseExport([]byte(doc)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseExport(%s) error = %v, want ErrMalformed", doc, err)
		}
	}
}

func TestMergeAliases(t *testing.T) {
	got := MergeAliases("Keep", " a, b ", "b,c,,Keep", "a")
	if got != "a, b, c" {
		t.Fatalf("MergeAliases() = %q", got)
	}
}

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties = props
	return f
}

func fcOf(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

func TestRunKeepsNonStringAttributes(t *testing.T) {
	export := `[{"id": 1, "geojson": {"type": "FeatureCollection", "features": [
	  {"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]},
	   "properties": {"name": 42, "type": 7, "alias": ["a", "b, c", 9]}}
	]}}]`

	layers, err := ParseExport([]byte(export))
	if err != nil {
		t.Fatalf("ParseExport() error = %v", err)
	}

	res, err := Run(layers, Options{RequireType: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	props := res.Collection.Features[0].Properties
	if props["name"] != float64(42) || props["type"] != float64(7) {
		t.Fatalf("name = %#v, type = %#v, want numbers kept", props["name"], props["type"])
	}
	if props["alias"] != "a, b, c, 9" {
		t.Fatalf("alias = %#v, want list merged", props["alias"])
	}
	if res.Types["7"] != 1 {
		t.Fatalf("types = %v", res.Types)
	}
}

func TestRunReportsUnsupportedAlias(t *testing.T) {
	layers := []Layer{{
		ID: "l",
		GeoJSON: fcOf(
			feature(orb.Point{1, 1}, geojson.Properties{"name": "x", "type": "t", "alias": map[string]any{"en": "y"}}),
			feature(orb.Point{2, 2}, geojson.Properties{"name": "z", "type": "t", "search": []any{"ok", true}}),
		),
	}}

	_, err := Run(layers, Options{RequireType: true})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want ValidationError", err)
	}
	if len(verr.Issues) != 2 {
		t.Fatalf("got %d issues, want 2: %v", len(verr.Issues), verr.Issues)
	}
	if !strings.Contains(verr.Issues[0].Reason, "alias") || !strings.Contains(verr.Issues[1].Reason, "search") {
		t.Fatalf("issues = %+v", verr.Issues)
	}
	if len(verr.Issues[0].Missing) != 0 {
		t.Fatalf("missing = %v, want none", verr.Issues[0].Missing)
	}
}

func TestRunReportsNullFeature(t *testing.T) {
	fc := fcOf(feature(orb.Point{1, 1}, geojson.Properties{"name": "x", "type": "t"}))
	fc.Features = append(fc.Features, nil)
	layers := []Layer{{ID: "l", Tooltip: "Tip", GeoJSON: fc}}

	res, err := Run(layers, Options{RequireType: true})
	if res != nil {
		t.Fatal("Run() returned a result despite a null feature")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want ValidationError", err)
	}
	if len(verr.Issues) != 1 {
		t.Fatalf("got %d issues, want 1", len(verr.Issues))
	}

	issue := verr.Issues[0]
	if issue.Feature != 1 || issue.LayerID != "l" || issue.Reason != "null feature" {
		t.Fatalf("issue = %+v", issue)
	}
	if !strings.Contains(issue.String(), `reason="null feature"`) {
		t.Fatalf("issue line = %s", issue)
	}
}
