// Package document reads and writes geometry-bearing documents in either the
// plain feature collection encoding or the arc-sharing topology encoding.
// Topology concerns stop here: stages only ever see feature collections.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/mapalign/internal/topojson"
)

// ErrMalformed is returned when a document fails to parse or has an
// unexpected top level shape.
var ErrMalformed = errors.New("document: malformed input")

// Format is a container encoding.
type Format string

// Supported formats. FormatAuto resolves to the format of the input.
const (
	FormatAuto     Format = "auto"
	FormatGeoJSON  Format = "geojson"
	FormatTopoJSON Format = "topojson"
)

// ParseFormat validates a configured format name; empty means auto.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatGeoJSON, FormatTopoJSON:
		return Format(s), nil
	}

	return "", fmt.Errorf("unknown document format %q", s)
}

// Resolve returns f, or fallback when f is auto.
func (f Format) Resolve(fallback Format) Format {
	if f == FormatAuto || f == "" {
		return fallback
	}

	return f
}

// Document is a decoded input.
type Document struct {
	Collection *geojson.FeatureCollection
	Format     Format
	// Layer is the topology object name the features came from, if any.
	Layer string
}

// Read loads and decodes the document at path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// Decode sniffs the top level type and decodes accordingly.
func Decode(data []byte) (*Document, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return &Document{Collection: fc, Format: FormatGeoJSON}, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return &Document{Collection: geojson.NewFeatureCollection().Append(f), Format: FormatGeoJSON}, nil

	case "Topology":
		fc, layer, err := topojson.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return &Document{Collection: fc, Format: FormatTopoJSON, Layer: layer}, nil
	}

	return nil, fmt.Errorf("%w: unexpected top level type %q", ErrMalformed, head.Type)
}

// EncodeOptions control output encoding.
type EncodeOptions struct {
	// Layer names the topology object; ignored for feature collections.
	Layer string
	// Quantization is the topology quantization in steps per axis.
	Quantization int
}

// Encode serializes fc in the given format.
func Encode(fc *geojson.FeatureCollection, format Format, opts EncodeOptions) ([]byte, error) {
	switch format {
	case FormatTopoJSON:
		return topojson.Marshal(fc, topojson.Options{
			Layer:        opts.Layer,
			Quantization: opts.Quantization,
		})
	case FormatGeoJSON, FormatAuto, "":
		return json.Marshal(fc)
	}

	return nil, fmt.Errorf("unknown document format %q", format)
}

// WriteFile writes data to path atomically: the content lands in a temporary
// file next to the destination and is renamed over it only once complete.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}

// WriteJSON marshals v with indentation and writes it through WriteOutput.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return WriteOutput(path, append(data, '\n'))
}

// WriteOutput writes data to path, or to stdout when path is empty or "-".
func WriteOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		if !bytes.HasSuffix(data, []byte("\n")) {
			data = append(data, '\n')
		}
		_, err := os.Stdout.Write(data)
		return err
	}

	return WriteFile(path, data)
}
