package captionr

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// writeImage writes a w x h PNG to path and returns path.
func writeImage(t *testing.T, path string, w, h int) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// fakeBackend returns a fixed caption or error and counts its calls.
type fakeBackend struct {
	name string
	out  string
	err  error
	// fn, when set, decides the answer per image
	fn func(img *Image) (string, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Caption(_ context.Context, img *Image) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(img)
	}
	return f.out, f.err
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeInterrogator records which method was used.
type fakeInterrogator struct {
	out string
	err error

	mu      sync.Mutex
	method  ClipMethod
	caption string
	flavors int
}

func (f *fakeInterrogator) record(m ClipMethod, caption string, n int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = m
	f.caption = caption
	f.flavors = n
	return f.out, f.err
}

func (f *fakeInterrogator) Interrogate(_ context.Context, caption string, _ *Image, n int) (string, error) {
	return f.record(ClipBest, caption, n)
}

func (f *fakeInterrogator) InterrogateFast(_ context.Context, caption string, _ *Image, n int) (string, error) {
	return f.record(ClipFast, caption, n)
}

func (f *fakeInterrogator) InterrogateClassic(_ context.Context, caption string, _ *Image, n int) (string, error) {
	return f.record(ClipClassic, caption, n)
}

type fakeMetadata struct {
	out string
	err error
}

func (f fakeMetadata) Caption(string) (string, error) { return f.out, f.err }
