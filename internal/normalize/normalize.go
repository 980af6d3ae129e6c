package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/mapalign/internal/geo"
)

// Marker is printed with validation failures so they are easy to grep for.
const Marker = "MISSING_ATTRIBUTES"

// Options configure a normalizer run.
type Options struct {
	Reprojection geo.Reprojection
	// Reproject enables the planar to lon/lat step.
	Reproject bool
	// RequireType makes a missing type property a validation failure.
	RequireType bool
}

// Result is the normalized collection plus summary counts.
type Result struct {
	Collection *geojson.FeatureCollection
	// Kinds counts output features per coarse geometry kind.
	Kinds map[string]int
	// Types counts output features per type property.
	Types map[string]int
	// Merged is the number of duplicates folded into earlier features.
	Merged int
}

// Issue locates a feature that failed validation.
type Issue struct {
	LayerID  string
	Tooltip  string
	Missing  []string
	Layer    int
	Feature  int
	Geometry string
	// Reason describes problems other than missing attributes.
	Reason string
}

func (i Issue) String() string {
	s := fmt.Sprintf("layer=%d feature=%d layer_id=%q tooltip=%q geometry=%s missing=%s",
		i.Layer, i.Feature, i.LayerID, i.Tooltip, i.Geometry, strings.Join(i.Missing, ","))
	if i.Reason != "" {
		s += " reason=" + strconv.Quote(i.Reason)
	}

	return s
}

// ValidationError lists every feature that failed validation.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d features failed validation", Marker, len(e.Issues))
}

// Run validates, deduplicates and reprojects every feature of the export.
// Nothing is returned unless every feature resolves its required attributes.
func Run(layers []Layer, opts Options) (*Result, error) {
	features, issues := collect(layers, opts.RequireType)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	fc, merged := dedupe(features)

	res := &Result{
		Collection: fc,
		Merged:     merged,
		Kinds:      make(map[string]int),
		Types:      make(map[string]int),
	}
	for _, f := range fc.Features {
		res.Kinds[geo.Kind(f.Geometry)]++
		if t := geo.PropertyString(f.Properties["type"]); t != "" {
			res.Types[t]++
		}
	}

	if opts.Reproject && len(fc.Features) > 0 {
		origin, err := opts.Reprojection.Apply(fc)
		if err != nil {
			return nil, fmt.Errorf("reprojection: %w", err)
		}
		log.Debug().
			Float64("origin_x", origin[0]).
			Float64("origin_y", origin[1]).
			Msg("Planar extent centroid resolved")
	}

	return res, nil
}

// collect derives the privileged attributes of every feature and gathers
// validation issues for all of them before anything is rejected.
func collect(layers []Layer, requireType bool) ([]*geojson.Feature, []Issue) {
	var (
		features []*geojson.Feature
		issues   []Issue
	)

	for li, layer := range layers {
		if layer.GeoJSON == nil {
			log.Debug().Int("layer", li).Str("layer_id", layer.DisplayID()).Msg("Layer has no features, skipping")
			continue
		}

		tooltip := strings.TrimSpace(layer.Tooltip)
		layerName := strings.TrimSpace(layer.Name)

		for fi, src := range layer.GeoJSON.Features {
			if src == nil {
				issues = append(issues, Issue{
					Layer:    li,
					Feature:  fi,
					LayerID:  layer.DisplayID(),
					Tooltip:  tooltip,
					Geometry: "null",
					Reason:   "null feature",
				})
				continue
			}

			props := make(geojson.Properties, len(src.Properties)+2)
			for k, v := range src.Properties {
				props[k] = v
			}

			// non-string name and type values are kept as they are
			name := geo.PropertyString(props["name"])
			if name == "" {
				name = tooltip
			}
			if name == "" {
				name = layerName
			}
			if _, ok := props["name"].(string); ok || geo.PropertyString(props["name"]) == "" {
				props["name"] = name
			}

			typ := geo.PropertyString(props["type"])
			if s, ok := props["type"].(string); ok {
				props["type"] = strings.TrimSpace(s)
			}

			aliases := newAliasSet()
			var invalid []string
			for _, key := range []string{"alias", "search"} {
				if !aliases.addValue(props[key], name) {
					invalid = append(invalid, key)
				}
			}
			if tooltip != name {
				aliases.add(tooltip, name)
			}
			props["alias"] = aliases.String()
			stripEmpty(props)

			var missing []string
			if name == "" {
				missing = append(missing, "name")
			}
			if requireType && typ == "" {
				missing = append(missing, "type")
			}
			if len(missing) > 0 || len(invalid) > 0 {
				issue := Issue{
					Layer:    li,
					Feature:  fi,
					LayerID:  layer.DisplayID(),
					Tooltip:  tooltip,
					Geometry: geo.Kind(src.Geometry),
					Missing:  missing,
				}
				if len(invalid) > 0 {
					issue.Reason = "unsupported value for " + strings.Join(invalid, ",")
				}
				issues = append(issues, issue)
				continue
			}

			f := geojson.NewFeature(src.Geometry)
			f.ID = src.ID
			f.Properties = props
			features = append(features, f)
		}
	}

	return features, issues
}

// stripEmpty drops null and blank string properties; false and 0 stay.
func stripEmpty(props geojson.Properties) {
	for k, v := range props {
		switch v := v.(type) {
		case nil:
			delete(props, k)
		case string:
			if strings.TrimSpace(v) == "" {
				delete(props, k)
			}
		}
	}
}

// dedupe keeps the first feature per (geometry signature, name) and folds
// the aliases of later duplicates into it.
func dedupe(features []*geojson.Feature) (*geojson.FeatureCollection, int) {
	fc := geojson.NewFeatureCollection()
	index := make(map[string]*geojson.Feature, len(features))
	merged := 0

	for _, f := range features {
		name := geo.PropertyString(f.Properties["name"])
		key := geo.Signature(f.Geometry) + "\x00" + name

		kept, ok := index[key]
		if !ok {
			index[key] = f
			fc.Append(f)
			continue
		}

		alias := MergeAliases(name,
			geo.PropertyString(kept.Properties["alias"]),
			geo.PropertyString(f.Properties["alias"]))
		if alias != "" {
			kept.Properties["alias"] = alias
		}
		merged++

		log.Trace().Str("name", name).Str("alias", alias).Msg("Duplicate feature merged")
	}

	return fc, merged
}
