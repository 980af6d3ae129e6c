package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

// DefaultTileSize is the edge length of a sliced tile in pixels.
const DefaultTileSize = 256

// SliceOptions configure cutting one large image into a pyramid.
type SliceOptions struct {
	// Source is a local path or an http(s) URL.
	Source      string
	OutputDir   string
	ZoomLimit   int
	TileSize    int
	Concurrency int
	Quality     float32
	Force       bool
}

// Slice scales the source image to every zoom level and cuts it into tiles.
// Each level is resampled from the original so quality does not degrade.
func Slice(ctx context.Context, client *http.Client, opts SliceOptions) (Stats, error) {
	var stats Stats

	if opts.Source == "" {
		return stats, errors.New("tiles: slice source is empty")
	}
	if opts.TileSize <= 0 {
		opts.TileSize = DefaultTileSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}

	src, err := LoadImage(ctx, client, opts.Source)
	if err != nil {
		return stats, err
	}

	log.Info().
		Int("width", src.Bounds().Dx()).
		Int("height", src.Bounds().Dy()).
		Msg("Source image loaded, starting tiling")

	var mu sync.Mutex
	for z := 0; z <= opts.ZoomLimit; z++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		grid := 1 << z
		size := grid * opts.TileSize

		log.Debug().Int("zoom", z).Int("grid", grid).Int("px", size).Msg("Processing zoom level")

		dst := image.NewRGBA(image.Rect(0, 0, size, size))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.Concurrency)

		for x := 0; x < grid; x++ {
			for y := 0; y < grid; y++ {
				wg.Add(1)
				sem <- struct{}{}

				go func(c Coordinate) {
					defer wg.Done()
					defer func() { <-sem }()

					cached, err := writeSlice(dst, opts, c)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err != nil:
						stats.Failed++
						log.Error().Err(err).Int("z", c.Z).Int("x", c.X).Int("y", c.Y).Msg("Failed to write tile")
					case cached:
						stats.Cached++
					default:
						stats.Saved++
					}
				}(Coordinate{Z: z, X: x, Y: y})
			}
		}
		wg.Wait()
	}

	return stats, nil
}

func writeSlice(level *image.RGBA, opts SliceOptions, c Coordinate) (bool, error) {
	outPath := TilePath(opts.OutputDir, c)

	if !opts.Force {
		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			return true, nil
		}
	}

	rect := image.Rect(c.X*opts.TileSize, c.Y*opts.TileSize, (c.X+1)*opts.TileSize, (c.Y+1)*opts.TileSize)
	tile := level.SubImage(rect)

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return false, err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, tile, &webp.Options{Lossless: false, Quality: opts.Quality}); err != nil {
		return false, err
	}

	return false, os.WriteFile(outPath, buf.Bytes(), 0644)
}

// LoadImage decodes an image from a local file or an http(s) URL.
func LoadImage(ctx context.Context, client *http.Client, source string) (image.Image, error) {
	var reader io.Reader

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		log.Info().Str("url", source).Msg("Downloading source image")

		body, err := download(ctx, client, source, 0)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", source, err)
		}
		reader = bytes.NewReader(body)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		reader = f
	}

	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	log.Debug().Str("format", format).Msg("Image decoded successfully")
	return img, nil
}
