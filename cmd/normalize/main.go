package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/woozymasta/mapalign/internal/config"
	"github.com/woozymasta/mapalign/internal/document"
	"github.com/woozymasta/mapalign/internal/geo"
	"github.com/woozymasta/mapalign/internal/logger"
	"github.com/woozymasta/mapalign/internal/normalize"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Input      string `short:"i" long:"in"     description:"Layer export path (overrides normalize.input)"`
	Output     string `short:"o" long:"out"    description:"Output path, stdout if empty (overrides normalize.output)"`
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

	nc := cfg.Normalize
	if opts.Input != "" {
		nc.Input = opts.Input
	}
	if opts.Output != "" {
		nc.Output = opts.Output
	}

	res, err := run(nc)
	if err != nil {
		var verr *normalize.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(os.Stderr, "%s %s\n", normalize.Marker, issue)
			}
		}
		log.Fatal().Err(err).Msg("Normalization failed, no output written")
	}

	log.Info().
		Int("features", len(res.Collection.Features)).
		Int("merged", res.Merged).
		Int("kinds", len(res.Kinds)).
		Int("types", len(res.Types)).
		Str("output", nc.Output).
		Msg("Normalization finished successfully")
}

// run normalizes the configured export and writes the output only when
// every feature passed validation.
func run(nc config.Normalize) (*normalize.Result, error) {
	runOpts := normalize.Options{
		Reproject:   !nc.SkipReprojection,
		RequireType: !nc.AllowMissingType,
	}
	if runOpts.Reproject {
		center, err := config.Pair("normalize.center", nc.Center)
		if err != nil {
			return nil, err
		}
		shift, err := config.OptionalPair("normalize.shift", nc.Shift)
		if err != nil {
			return nil, err
		}
		runOpts.Reprojection = geo.Reprojection{Center: center, Shift: shift, Scale: nc.Scale}
	}

	layers, err := normalize.ReadExport(nc.Input)
	if err != nil {
		return nil, fmt.Errorf("read layer export: %w", err)
	}

	log.Info().
		Str("input", nc.Input).
		Int("layers", len(layers)).
		Bool("reproject", runOpts.Reproject).
		Msg("Normalizing features")

	res, err := normalize.Run(layers, runOpts)
	if err != nil {
		return nil, err
	}

	for kind, n := range res.Kinds {
		log.Info().Str("kind", kind).Int("count", n).Msg("Geometry kind")
	}
	for typ, n := range res.Types {
		log.Info().Str("type", typ).Int("count", n).Msg("Feature type")
	}

	data, err := document.Encode(res.Collection, document.FormatGeoJSON, document.EncodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	if err := document.WriteOutput(nc.Output, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", nc.Output, err)
	}

	return res, nil
}
