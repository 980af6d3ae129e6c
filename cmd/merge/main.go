package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/woozymasta/mapalign/internal/config"
	"github.com/woozymasta/mapalign/internal/document"
	"github.com/woozymasta/mapalign/internal/logger"
	"github.com/woozymasta/mapalign/internal/merge"
	"github.com/woozymasta/mapalign/internal/topojson"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"     env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Geometry   string `short:"g" long:"geometry"   description:"Document with correct coordinates (overrides merge.geometry)"`
	Attributes string `short:"a" long:"attributes" description:"Document with correct attributes (overrides merge.attributes)"`
	Output     string `short:"o" long:"out"        description:"Output path, stdout if empty (overrides merge.output)"`
	Format     string `short:"f" long:"format"     description:"Output format: auto, geojson or topojson (overrides merge.format)"`
}

func main() {
	_ = godotenv.Load(".env")

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	mc := cfg.Merge
	if opts.Geometry != "" {
		mc.Geometry = opts.Geometry
	}
	if opts.Attributes != "" {
		mc.Attributes = opts.Attributes
	}
	if opts.Output != "" {
		mc.Output = opts.Output
	}
	if opts.Format != "" {
		mc.Format = opts.Format
	}

	res, err := run(mc)
	if err != nil {
		report(err)
		log.Fatal().Err(err).Msg("Merge failed, no output written")
	}

	log.Info().
		Int("features", len(res.Collection.Features)).
		Int("groups", res.Groups).
		Int("duplicate_groups", res.DuplicateGroups).
		Str("output", mc.Output).
		Msg("Merge finished successfully")
}

// run merges the configured documents. The output is written only when the
// merge as a whole succeeded.
func run(mc config.Merge) (*merge.Result, error) {
	format, err := document.ParseFormat(mc.Format)
	if err != nil {
		return nil, err
	}

	geoDoc, err := document.Read(mc.Geometry)
	if err != nil {
		return nil, fmt.Errorf("read geometry document: %w", err)
	}
	attrDoc, err := document.Read(mc.Attributes)
	if err != nil {
		return nil, fmt.Errorf("read attributes document: %w", err)
	}

	log.Info().
		Int("geometry_features", len(geoDoc.Collection.Features)).
		Int("attribute_features", len(attrDoc.Collection.Features)).
		Strs("aux_keys", mc.AuxKeys).
		Msg("Merging documents")

	res, err := merge.Run(geoDoc.Collection, attrDoc.Collection, merge.Options{
		AuxKeys:        mc.AuxKeys,
		SignatureBonus: mc.SignatureBonus,
		DisplayCap:     mc.DisplayCap,
	})
	if err != nil {
		return nil, err
	}

	layer := mc.Layer
	if layer == "" {
		layer = attrDoc.Layer
	}
	if layer == "" {
		layer = topojson.DefaultLayer
	}

	out := format.Resolve(attrDoc.Format)
	data, err := document.Encode(res.Collection, out, document.EncodeOptions{
		Layer:        layer,
		Quantization: mc.Quantization,
	})
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	if err := document.WriteOutput(mc.Output, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", mc.Output, err)
	}

	log.Debug().Str("format", string(out)).Str("layer", layer).Msg("Output encoded")

	return res, nil
}

// report prints the detail lines of a merge error to stderr.
func report(err error) {
	var (
		featErr *merge.FeatureError
		setErr  *merge.SetMismatchError
		cardErr *merge.CardinalityError
	)

	switch {
	case errors.As(err, &featErr):
		for _, issue := range featErr.Issues {
			fmt.Fprintf(os.Stderr, "%s %s\n", merge.MarkerInvalid, issue)
		}
	case errors.As(err, &setErr):
		fmt.Fprintln(os.Stderr, merge.MarkerSetMismatch)
		for _, line := range setErr.Lines() {
			fmt.Fprintln(os.Stderr, "  "+line)
		}
	case errors.As(err, &cardErr):
		fmt.Fprintln(os.Stderr, merge.MarkerCardinality)
		for _, c := range cardErr.Mismatches {
			fmt.Fprintln(os.Stderr, "  "+c.String())
		}
	}
}
