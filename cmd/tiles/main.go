package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/mapalign/internal/config"
	"github.com/woozymasta/mapalign/internal/logger"
	"github.com/woozymasta/mapalign/internal/tiles"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	URL         string `short:"u" long:"url"         env:"TILES_URL"   description:"Tile URL template with {z}, {x}, {y} or {tms_y} (overrides tiles.url)"`
	Source      string `short:"s" long:"source"      env:"TILES_SOURCE" description:"Slice this image instead of downloading (overrides tiles.source)"`
	Output      string `short:"o" long:"out"         description:"Tile output directory (overrides tiles.output_dir)"`
	ZoomLimit   int    `short:"z" long:"zoom-limit"  env:"ZOOM_LIMIT"  description:"Tiles zoom limit (overrides tiles.zoom)"`
	Concurrency int    `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Concurrency (overrides tiles.concurrency)"`
	Force       bool   `short:"f" long:"force"       description:"Force overwrite of existing tiles"`
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

	tc := cfg.Tiles
	if opts.URL != "" {
		tc.URL = opts.URL
	}
	if opts.Source != "" {
		tc.Source = opts.Source
	}
	if opts.Output != "" {
		tc.OutputDir = opts.Output
	}
	if opts.ZoomLimit > 0 {
		tc.ZoomLimit = opts.ZoomLimit
	}
	if opts.Concurrency > 0 {
		tc.Concurrency = opts.Concurrency
	}
	if opts.Force {
		tc.Force = true
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("url", tc.URL).
		Str("source", tc.Source).
		Str("output", tc.OutputDir).
		Int("zoom_limit", tc.ZoomLimit).
		Int("concurrency", tc.Concurrency).
		Msg("Starting tile fetch")

	var stats tiles.Stats
	if tc.Source != "" {
		stats, err = tiles.Slice(ctx, client, tiles.SliceOptions{
			Source:      tc.Source,
			OutputDir:   tc.OutputDir,
			ZoomLimit:   tc.ZoomLimit,
			TileSize:    tc.TileSize,
			Concurrency: tc.Concurrency,
			Quality:     tc.Quality,
			Force:       tc.Force,
		})
	} else {
		stats, err = tiles.Fetch(ctx, client, tiles.Options{
			URLTemplate: tc.URL,
			OutputDir:   tc.OutputDir,
			ZoomLimit:   tc.ZoomLimit,
			Concurrency: tc.Concurrency,
			Retries:     tc.Retries,
			Timeout:     tc.Timeout,
			Backoff:     tc.Backoff,
			Pace:        tc.Pace,
			Jitter:      tc.Jitter,
			Quality:     tc.Quality,
			Force:       tc.Force,
		})
	}

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.
		Int("saved", stats.Saved).
		Int("cached", stats.Cached).
		Int("missing", stats.Missing).
		Int("failed", stats.Failed).
		Msg("Tile fetch finished")

	if err != nil {
		stop()
		os.Exit(1)
	}
}
