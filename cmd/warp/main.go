package main

import (
	"fmt"
	"os"

	"github.com/woozymasta/mapalign/internal/config"
	"github.com/woozymasta/mapalign/internal/document"
	"github.com/woozymasta/mapalign/internal/logger"
	"github.com/woozymasta/mapalign/internal/topojson"
	"github.com/woozymasta/mapalign/internal/tps"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"  env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Input      string `short:"i" long:"in"      description:"Document to warp (overrides warp.input)"`
	Output     string `short:"o" long:"out"     description:"Output path, stdout if empty (overrides warp.output)"`
	Format     string `short:"f" long:"format"  description:"Output format: auto, geojson or topojson (overrides warp.format)"`
	DryRun     bool   `short:"n" long:"dry-run" description:"Fit and report residuals without writing output"`
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

	wc := cfg.Warp
	if opts.Input != "" {
		wc.Input = opts.Input
	}
	if opts.Output != "" {
		wc.Output = opts.Output
	}
	if opts.Format != "" {
		wc.Format = opts.Format
	}

	if err := run(wc, opts.DryRun); err != nil {
		log.Fatal().Err(err).Msg("Warp failed, no output written")
	}
}

// run fits the spline, reports every residual and, unless dryRun is set,
// warps the input document. Output is written only after everything else
// succeeded.
func run(wc config.Warp, dryRun bool) error {
	format, err := document.ParseFormat(wc.Format)
	if err != nil {
		return err
	}

	points, err := controlPoints(wc.ControlPoints)
	if err != nil {
		return err
	}

	spline, err := tps.Fit(points, tps.Options{Lambda: wc.Lambda})
	if err != nil {
		return fmt.Errorf("fit %d control points: %w", len(points), err)
	}

	report := spline.Residuals(points)
	for _, r := range report.Points {
		log.Info().
			Str("name", r.Name).
			Floats64("target", r.Target[:]).
			Floats64("fitted", r.Fitted[:]).
			Float64("error", r.Error).
			Msg("Control point residual")
	}
	log.Info().
		Int("control_points", len(points)).
		Float64("lambda", wc.Lambda).
		Float64("rmse", report.RMSE).
		Float64("max", report.Max).
		Msg("Warp fitted")

	if dryRun {
		return nil
	}

	doc, err := document.Read(wc.Input)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	warped := tps.WarpCollection(doc.Collection, spline)

	layer := wc.Layer
	if layer == "" {
		layer = doc.Layer
	}
	if layer == "" {
		layer = topojson.DefaultLayer
	}

	out := format.Resolve(doc.Format)
	data, err := document.Encode(warped, out, document.EncodeOptions{
		Layer:        layer,
		Quantization: wc.Quantization,
	})
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := document.WriteOutput(wc.Output, data); err != nil {
		return fmt.Errorf("write %s: %w", wc.Output, err)
	}

	log.Info().
		Int("features", len(warped.Features)).
		Str("format", string(out)).
		Str("output", wc.Output).
		Msg("Warp finished successfully")

	return nil
}

func controlPoints(cps []config.ControlPoint) ([]tps.ControlPoint, error) {
	points := make([]tps.ControlPoint, 0, len(cps))
	for i, cp := range cps {
		name := cp.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}

		src, err := config.Pair("warp.control_points["+name+"].source", cp.Source)
		if err != nil {
			return nil, err
		}
		dst, err := config.Pair("warp.control_points["+name+"].target", cp.Target)
		if err != nil {
			return nil, err
		}

		points = append(points, tps.ControlPoint{Name: name, Source: src, Target: dst})
	}

	return points, nil
}
