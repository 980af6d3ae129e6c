package main

import (
	"fmt"
	"os"

	"github.com/woozymasta/mapalign/internal/bounds"
	"github.com/woozymasta/mapalign/internal/config"
	"github.com/woozymasta/mapalign/internal/document"
	"github.com/woozymasta/mapalign/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string   `short:"c" long:"config"  env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Input      string   `short:"i" long:"in"      description:"Document path (overrides bounds.input)"`
	Output     string   `short:"o" long:"out"     description:"Output path, stdout if empty (overrides bounds.output)"`
	Padding    *float64 `short:"p" long:"padding" description:"Padding fraction, 0 disables it (overrides bounds.padding)"`
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

	bc := cfg.Bounds
	if opts.Input != "" {
		bc.Input = opts.Input
	}
	if opts.Output != "" {
		bc.Output = opts.Output
	}
	if opts.Padding != nil {
		bc.Padding = *opts.Padding
	}

	res, err := run(bc)
	if err != nil {
		log.Fatal().Err(err).Str("input", bc.Input).Msg("Failed to compute bounds")
	}

	log.Info().
		Int("coordinates", res.Coordinates).
		Str("output", bc.Output).
		Msg("Bounds written")
}

// run computes the padded extent of the input and writes the viewport.
func run(bc config.Bounds) (*bounds.Result, error) {
	doc, err := document.Read(bc.Input)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	res, err := bounds.Compute(doc.Collection, bounds.Options{Padding: bc.Padding})
	if err != nil {
		return nil, err
	}

	log.Info().
		Float64("left", res.Raw.Left).
		Float64("bottom", res.Raw.Bottom).
		Float64("right", res.Raw.Right).
		Float64("top", res.Raw.Top).
		Str("format", string(doc.Format)).
		Msg("Unpadded bounds")

	log.Info().
		Float64("left", res.Padded.Left).
		Float64("bottom", res.Padded.Bottom).
		Float64("right", res.Padded.Right).
		Float64("top", res.Padded.Top).
		Float64("padding", bc.Padding).
		Msg("Padded bounds")

	if err := document.WriteJSON(bc.Output, res.Viewport()); err != nil {
		return nil, fmt.Errorf("write %s: %w", bc.Output, err)
	}

	return res, nil
}
