package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

func pngTile(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type tileServer struct {
	mu       sync.Mutex
	requests map[string]int
	handler  func(path string, n int) int
	body     []byte
}

func (s *tileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	n := s.requests[r.URL.Path]
	s.mu.Unlock()

	code := s.handler(r.URL.Path, n)
	if code != http.StatusOK {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(s.body)
}

func (s *tileServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func TestFetchPyramid(t *testing.T) {
	srv := &tileServer{
		requests: make(map[string]int),
		body:     pngTile(t),
		handler: func(path string, n int) int {
			switch path {
			case "/0/0/0.png", "/1/1/1.png":
				return http.StatusOK
			case "/1/0/0.png":
				// transient failure first
				if n == 1 {
					return http.StatusServiceUnavailable
				}
				return http.StatusOK
			case "/1/1/0.png":
				return http.StatusForbidden
			}
			return http.StatusNotFound
		},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := t.TempDir()
	opts := Options{
		URLTemplate: ts.URL + "/{z}/{x}/{y}.png",
		OutputDir:   dir,
		ZoomLimit:   1,
		Concurrency: 2,
		Retries:     2,
		Timeout:     5 * time.Second,
		Backoff:     time.Millisecond,
		Jitter:      time.Millisecond,
	}

	stats, err := Fetch(context.Background(), ts.Client(), opts)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := Stats{Saved: 3, Missing: 1, Failed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	for _, c := range []Coordinate{{0, 0, 0}, {1, 0, 0}, {1, 1, 1}} {
		if info, err := os.Stat(TilePath(dir, c)); err != nil || info.Size() == 0 {
			t.Fatalf("tile %v not stored: %v", c, err)
		}
	}

	if n := srv.count("/1/0/0.png"); n != 2 {
		t.Fatalf("transient tile requested %d times, want 2", n)
	}
	if n := srv.count("/1/1/0.png"); n != 1 {
		t.Fatalf("forbidden tile requested %d times, want 1", n)
	}
	if n := srv.count("/1/0/1.png"); n != 1 {
		t.Fatalf("missing tile requested %d times, want 1", n)
	}

	// second run hits the cache for stored tiles
	stats, err = Fetch(context.Background(), ts.Client(), opts)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if stats.Cached != 3 || stats.Saved != 0 {
		t.Fatalf("second run stats = %+v", stats)
	}
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fetch(ctx, http.DefaultClient, Options{URLTemplate: "http://127.0.0.1/{z}/{x}/{y}", OutputDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNotFound, false},
		{&statusError{code: http.StatusForbidden}, false},
		{&statusError{code: http.StatusBadGateway}, true},
		{&statusError{code: http.StatusTooManyRequests}, true},
		{errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://t/{z}/{x}/{y}-{tms_y}.png", Coordinate{Z: 2, X: 1, Y: 0})
	if got != "https://t/2/1/0-3.png" {
		t.Fatalf("BuildURL() = %q", got)
	}
}
