// Package config handles configuration loading for the pipeline stages.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tunables, applied by Load when a value is left unset.
const (
	DefaultPadding        = 0.05
	DefaultQuantization   = 100000
	DefaultSignatureBonus = 0.9
	DefaultDisplayCap     = 20
	DefaultConcurrency    = 8
	DefaultRetries        = 3
)

// Config represents the root configuration file structure.
// Each section drives one stage.
type Config struct {
	Normalize Normalize `yaml:"normalize"`
	Bounds    Bounds    `yaml:"bounds"`
	Warp      Warp      `yaml:"warp"`
	Merge     Merge     `yaml:"merge"`
	Tiles     Tiles     `yaml:"tiles"`
}

// Normalize configures the feature normalizer.
type Normalize struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	// lon/lat the planar extent centroid is placed on
	Center []float64 `yaml:"center"`
	// lon/lat nudge applied after reprojection
	Shift []float64 `yaml:"shift,omitempty"`
	// metres per source unit
	Scale float64 `yaml:"scale"`

	// accept features without a type property
	AllowMissingType bool `yaml:"allow_missing_type,omitempty"`
	// keep source coordinates untouched
	SkipReprojection bool `yaml:"skip_reprojection,omitempty"`
}

// Bounds configures the bounds calculator.
type Bounds struct {
	Input   string  `yaml:"input"`
	Output  string  `yaml:"output"`
	Padding float64 `yaml:"padding"`
}

// ControlPoint is a configured correspondence between two coordinate spaces.
type ControlPoint struct {
	Name   string    `yaml:"name"`
	Source []float64 `yaml:"source"`
	Target []float64 `yaml:"target"`
}

// Warp configures the thin-plate-spline warp engine.
type Warp struct {
	Input         string         `yaml:"input"`
	Output        string         `yaml:"output"`
	Format        string         `yaml:"format,omitempty"`
	Layer         string         `yaml:"layer,omitempty"`
	ControlPoints []ControlPoint `yaml:"control_points"`
	Lambda        float64        `yaml:"lambda,omitempty"`
	Quantization  int            `yaml:"quantization,omitempty"`
}

// Merge configures the duplicate-aware merger.
type Merge struct {
	// correct coordinates
	Geometry string `yaml:"geometry"`
	// correct attributes
	Attributes     string   `yaml:"attributes"`
	Output         string   `yaml:"output"`
	Format         string   `yaml:"format,omitempty"`
	Layer          string   `yaml:"layer,omitempty"`
	AuxKeys        []string `yaml:"aux_keys,omitempty"`
	SignatureBonus float64  `yaml:"signature_bonus,omitempty"`
	DisplayCap     int      `yaml:"display_cap,omitempty"`
	Quantization   int      `yaml:"quantization,omitempty"`
}

// Tiles configures the raster tile fetcher.
type Tiles struct {
	URL string `yaml:"url"`
	// Source is a single large image sliced instead of downloading tiles.
	Source      string        `yaml:"source,omitempty"`
	TileSize    int           `yaml:"tile_size,omitempty"`
	OutputDir   string        `yaml:"output_dir"`
	ZoomLimit   int           `yaml:"zoom"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Retries     int           `yaml:"retries,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Backoff     time.Duration `yaml:"backoff,omitempty"`
	Pace        time.Duration `yaml:"pace,omitempty"`
	Jitter      time.Duration `yaml:"jitter,omitempty"`
	Quality     float32       `yaml:"quality,omitempty"`
	Force       bool          `yaml:"force,omitempty"`
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes configuration from YAML and fills defaults.
func Parse(data []byte) (*Config, error) {
	// an explicit 0 is meaningful for these, so they are preset and only
	// replaced when the key is present
	cfg := Config{
		Bounds: Bounds{Padding: DefaultPadding},
		Warp:   Warp{Quantization: DefaultQuantization},
		Merge:  Merge{Quantization: DefaultQuantization},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Normalize.Scale == 0 {
		c.Normalize.Scale = 1
	}
	if c.Merge.SignatureBonus == 0 {
		c.Merge.SignatureBonus = DefaultSignatureBonus
	}
	if c.Merge.DisplayCap == 0 {
		c.Merge.DisplayCap = DefaultDisplayCap
	}
	if len(c.Merge.AuxKeys) == 0 {
		c.Merge.AuxKeys = []string{"type", "region", "faction"}
	}
	if c.Tiles.Concurrency <= 0 {
		c.Tiles.Concurrency = DefaultConcurrency
	}
	if c.Tiles.Retries <= 0 {
		c.Tiles.Retries = DefaultRetries
	}
	if c.Tiles.Timeout <= 0 {
		c.Tiles.Timeout = 15 * time.Second
	}
	if c.Tiles.Backoff <= 0 {
		c.Tiles.Backoff = 500 * time.Millisecond
	}
	if c.Tiles.Quality <= 0 {
		c.Tiles.Quality = 85
	}
}

// Pair converts a configured [x, y] list into a coordinate pair.
func Pair(field string, v []float64) ([2]float64, error) {
	if len(v) != 2 {
		return [2]float64{}, fmt.Errorf("%s: want [x, y], got %d values", field, len(v))
	}

	return [2]float64{v[0], v[1]}, nil
}

// OptionalPair is Pair, but an empty list yields the zero pair.
func OptionalPair(field string, v []float64) ([2]float64, error) {
	if len(v) == 0 {
		return [2]float64{}, nil
	}

	return Pair(field, v)
}
