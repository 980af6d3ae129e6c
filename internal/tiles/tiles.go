// Package tiles downloads a raster tile pyramid used as a backdrop for
// picking control points by hand. It is never part of the geometry pipeline.
package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotFound marks a tile the server does not have. It is not a failure.
var ErrNotFound = errors.New("tiles: tile not found")

// Options configure a fetch run.
type Options struct {
	URLTemplate string
	OutputDir   string
	ZoomLimit   int
	Concurrency int
	// Retries is the number of extra attempts for transient failures.
	Retries int
	Timeout time.Duration
	// Backoff is the first retry delay, doubled on each attempt.
	Backoff time.Duration
	// Pace and Jitter delay every request by Pace plus up to Jitter.
	Pace    time.Duration
	Jitter  time.Duration
	Quality float32
	Force   bool
}

// Coordinate represents a specific tile.
type Coordinate struct {
	Z, X, Y int
}

// Stats counts tile outcomes of a run.
type Stats struct {
	Saved   int
	Cached  int
	Missing int
	Failed  int
}

type result struct {
	err    error
	coord  Coordinate
	valid  bool
	cached bool
}

// statusError is an unexpected HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status code %d", e.code)
}

// retryable separates transient failures from permanent ones.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}

	return true
}

// Fetch walks the pyramid level by level. Only children of tiles that exist
// are requested on the next level.
func Fetch(ctx context.Context, client *http.Client, opts Options) (Stats, error) {
	var stats Stats

	if opts.URLTemplate == "" {
		return stats, errors.New("tiles: url template is empty")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}

	level := []Coordinate{{0, 0, 0}}

	for z := 0; z <= opts.ZoomLimit && len(level) > 0; z++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		log.Debug().Int("zoom", z).Int("count", len(level)).Msg("Processing zoom level")

		valid := processBatch(ctx, client, opts, level, &stats)

		next := make([]Coordinate, 0, len(valid)*4)
		for _, t := range valid {
			nx, ny := t.X*2, t.Y*2
			next = append(next,
				Coordinate{Z: z + 1, X: nx, Y: ny},
				Coordinate{Z: z + 1, X: nx + 1, Y: ny},
				Coordinate{Z: z + 1, X: nx, Y: ny + 1},
				Coordinate{Z: z + 1, X: nx + 1, Y: ny + 1},
			)
		}
		level = next
	}

	return stats, nil
}

func processBatch(ctx context.Context, client *http.Client, opts Options, tiles []Coordinate, stats *Stats) []Coordinate {
	jobs := make(chan Coordinate, len(tiles))
	results := make(chan result, len(tiles))

	for _, t := range tiles {
		jobs <- t
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				cached, err := fetchTile(ctx, client, opts, c)
				results <- result{coord: c, valid: err == nil, cached: cached, err: err}
			}
		}()
	}
	wg.Wait()
	close(results)

	var valid []Coordinate
	for res := range results {
		switch {
		case res.err == nil && res.cached:
			stats.Cached++
		case res.err == nil:
			stats.Saved++
		case errors.Is(res.err, ErrNotFound):
			stats.Missing++
		default:
			stats.Failed++
			log.Warn().
				Err(res.err).
				Str("url", BuildURL(opts.URLTemplate, res.coord)).
				Msg("Failed to download tile")
		}

		if res.valid {
			valid = append(valid, res.coord)
		}
	}

	return valid
}

// TilePath is where a tile is stored below dir.
func TilePath(dir string, c Coordinate) string {
	return filepath.Join(dir, strconv.Itoa(c.Z), strconv.Itoa(c.X), strconv.Itoa(c.Y)+".webp")
}

// fetchTile downloads, converts and stores one tile; cached reports a tile
// that was already on disk.
func fetchTile(ctx context.Context, client *http.Client, opts Options, c Coordinate) (bool, error) {
	outPath := TilePath(opts.OutputDir, c)

	if !opts.Force {
		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			return true, nil
		}
	}

	url := BuildURL(opts.URLTemplate, c)

	var (
		body []byte
		err  error
	)
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			delay := opts.Backoff << (attempt - 1)
			log.Trace().Str("url", url).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying tile")
			if err := sleep(ctx, delay); err != nil {
				return false, err
			}
		}

		if err := sleep(ctx, pace(opts)); err != nil {
			return false, err
		}

		body, err = download(ctx, client, url, opts.Timeout)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return false, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		log.Trace().Err(err).Str("url", url).Msg("Failed to decode image")
		return false, ErrNotFound
	}

	// map servers answer out of range requests with 1px placeholders
	if img.Bounds().Dx() <= 1 {
		log.Trace().Str("url", url).Msg("Filtered empty tile")
		return false, ErrNotFound
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return false, err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: opts.Quality}); err != nil {
		return false, err
	}

	return false, os.WriteFile(outPath, buf.Bytes(), 0644)
}

func download(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		log.Trace().Str("url", url).Msg("Tile not found (404)")
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

func pace(opts Options) time.Duration {
	d := opts.Pace
	if opts.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(opts.Jitter)))
	}

	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BuildURL expands {z}, {x}, {y} and {tms_y} in a tile URL template.
func BuildURL(tpl string, c Coordinate) string {
	s := strings.ReplaceAll(tpl, "{z}", strconv.Itoa(c.Z))
	s = strings.ReplaceAll(s, "{x}", strconv.Itoa(c.X))
	s = strings.ReplaceAll(s, "{y}", strconv.Itoa(c.Y))

	if strings.Contains(s, "{tms_y}") {
		maxCoord := (1 << c.Z) - 1
		s = strings.ReplaceAll(s, "{tms_y}", strconv.Itoa(maxCoord-c.Y))
	}

	return s
}
