// Package merge transplants authoritative coordinates onto the dataset that
// holds authoritative attributes, matching features by name and resolving
// same-name duplicates by nearest neighbour.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/woozymasta/mapalign/internal/geo"
)

// Options configure a merge.
type Options struct {
	// AuxKeys are the properties forming the secondary signature.
	AuxKeys []string
	// SignatureBonus multiplies the cost of pairs whose signatures match.
	SignatureBonus float64
	// DisplayCap limits the per-side listing of a name set mismatch.
	DisplayCap int
}

// Result is the merged collection and its summary.
type Result struct {
	Collection *geojson.FeatureCollection
	// Groups is the number of distinct names.
	Groups int
	// DuplicateGroups is the number of names resolved by assignment.
	DuplicateGroups int
}

type entry struct {
	feature   *geojson.Feature
	signature string
	point     orb.Point
	index     int
}

// NormalizeName is the matching key: NFKC, case folded, inner whitespace
// collapsed.
func NormalizeName(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Run merges the two collections. Either everything matches and a full
// result is returned, or an error lists every problem found.
func Run(geometry, attributes *geojson.FeatureCollection, opts Options) (*Result, error) {
	if opts.SignatureBonus <= 0 {
		opts.SignatureBonus = 1
	}

	var issues []FeatureIssue
	geoIndex := index(geometry, SideGeometry, opts.AuxKeys, &issues)
	attrIndex := index(attributes, SideAttributes, opts.AuxKeys, &issues)
	if len(issues) > 0 {
		return nil, &FeatureError{Issues: issues}
	}

	if err := checkNameSets(geoIndex, attrIndex, opts.DisplayCap); err != nil {
		return nil, err
	}

	names := sortedKeys(geoIndex)

	var mismatches []Cardinality
	for _, name := range names {
		g, a := geoIndex[name], attrIndex[name]
		if len(g) != len(a) {
			mismatches = append(mismatches, Cardinality{
				Name:       displayName(a, g),
				Geometry:   len(g),
				Attributes: len(a),
			})
		}
	}
	if len(mismatches) > 0 {
		return nil, &CardinalityError{Mismatches: mismatches}
	}

	res := &Result{
		Collection: geojson.NewFeatureCollection(),
		Groups:     len(names),
	}

	for _, name := range names {
		g, a := geoIndex[name], attrIndex[name]
		if len(g) > 1 {
			res.DuplicateGroups++
		}

		for _, p := range assign(g, a, opts.SignatureBonus) {
			src := a[p.attr].feature
			f := geojson.NewFeature(g[p.geo].point)
			f.ID = src.ID
			for k, v := range src.Properties {
				f.Properties[k] = v
			}
			res.Collection.Append(f)

			if len(g) > 1 {
				log.Debug().
					Str("name", name).
					Int("geometry_index", g[p.geo].index).
					Int("attributes_index", a[p.attr].index).
					Float64("cost", p.cost).
					Msg("Duplicate resolved")
			}
		}
	}

	return res, nil
}

// index builds the normalized name multimap of one side.
func index(fc *geojson.FeatureCollection, side Side, auxKeys []string, issues *[]FeatureIssue) map[string][]entry {
	out := make(map[string][]entry)

	for i, f := range fc.Features {
		if f == nil {
			*issues = append(*issues, FeatureIssue{Side: side, Index: i, Reason: "null feature"})
			continue
		}

		id := geo.PropertyString(f.ID)
		name := NormalizeName(geo.PropertyString(f.Properties["name"]))
		if name == "" {
			*issues = append(*issues, FeatureIssue{Side: side, Index: i, ID: id, Reason: "missing name"})
			continue
		}

		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			kind := "null"
			if f.Geometry != nil {
				kind = f.Geometry.GeoJSONType()
			}
			*issues = append(*issues, FeatureIssue{
				Side:   side,
				Index:  i,
				ID:     id,
				Reason: fmt.Sprintf("%q has %s geometry, want Point", name, kind),
			})
			continue
		}

		out[name] = append(out[name], entry{
			feature:   f,
			point:     pt,
			signature: signature(f.Properties, auxKeys),
			index:     i,
		})
	}

	return out
}

// signature joins the present auxiliary attributes; empty when none are set.
func signature(props geojson.Properties, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := NormalizeName(geo.PropertyString(props[k])); v != "" {
			parts = append(parts, k+"="+v)
		}
	}

	return strings.Join(parts, "|")
}

func checkNameSets(geoIndex, attrIndex map[string][]entry, displayCap int) error {
	var onlyGeo, onlyAttr []string

	for _, name := range sortedKeys(geoIndex) {
		if _, ok := attrIndex[name]; !ok {
			onlyGeo = append(onlyGeo, displayName(geoIndex[name]))
		}
	}
	for _, name := range sortedKeys(attrIndex) {
		if _, ok := geoIndex[name]; !ok {
			onlyAttr = append(onlyAttr, displayName(attrIndex[name]))
		}
	}

	if len(onlyGeo) == 0 && len(onlyAttr) == 0 {
		return nil
	}

	return &SetMismatchError{OnlyGeometry: onlyGeo, OnlyAttributes: onlyAttr, Cap: displayCap}
}

// displayName is the original spelling of the first entry found.
func displayName(groups ...[]entry) string {
	for _, g := range groups {
		if len(g) > 0 {
			return geo.PropertyString(g[0].feature.Properties["name"])
		}
	}

	return ""
}

func sortedKeys(m map[string][]entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
