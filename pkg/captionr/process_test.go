package captionr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func previewConfig() Config {
	c := DefaultConfig()
	c.Existing = ExistingIgnore
	c.Passes = []string{"coca", "git", "blip"}
	c.Preview = true
	return c
}

func TestProcessFallback(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name     string
		coca     *fakeBackend
		git      *fakeBackend
		blip     *fakeBackend
		existing string
		want     string
		// calls made to coca, git and blip
		wantCalls []int
	}{
		{
			name:      "first answer accepted",
			coca:      &fakeBackend{out: "a cat on a sofa"},
			git:       &fakeBackend{out: "a dog"},
			blip:      &fakeBackend{out: "a bird"},
			want:      "a cat on a sofa",
			wantCalls: []int{1, 0, 0},
		},
		{
			name:      "fail phrase and error fall through",
			coca:      &fakeBackend{out: "a sign that says hello"},
			git:       &fakeBackend{err: errBoom},
			blip:      &fakeBackend{out: "a cat sitting ."},
			want:      "a cat sitting",
			wantCalls: []int{1, 1, 1},
		},
		{
			name:      "all fail phrases keeps last",
			coca:      &fakeBackend{out: "a sign that says x"},
			git:       &fakeBackend{out: "writing that says y"},
			blip:      &fakeBackend{out: "a poster with the word z"},
			want:      "a poster with the word z",
			wantCalls: []int{1, 1, 1},
		},
		{
			name:      "all errors keeps existing",
			coca:      &fakeBackend{err: errBoom},
			git:       &fakeBackend{err: errBoom},
			blip:      &fakeBackend{err: errBoom},
			existing:  "old, tags",
			want:      "old, tags",
			wantCalls: []int{1, 1, 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			img := writeImage(t, filepath.Join(dir, "img.png"), 8, 8)
			if tc.existing != "" {
				writeFile(t, filepath.Join(dir, "img.txt"), tc.existing)
			}

			cr := New(previewConfig(), Deps{Backends: map[string]Backend{"coca": tc.coca, "git": tc.git, "blip": tc.blip}})
			got, err := cr.Process(context.Background(), img)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Process() = %q, want %q", got, tc.want)
			}

			calls := []int{tc.coca.Calls(), tc.git.Calls(), tc.blip.Calls()}
			if diff := cmp.Diff(tc.wantCalls, calls); diff != "" {
				t.Errorf("backend calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessOnlyEnabledPasses(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "img.png"), 8, 8)

	coca := &fakeBackend{out: "from coca"}
	git := &fakeBackend{out: "from git"}
	extra := &fakeBackend{out: "from extra"}

	c := previewConfig()
	c.Passes = []string{"git", "extra"}
	c.ModelOrder = []string{"coca", "git"}

	cr := New(c, Deps{Backends: map[string]Backend{"coca": coca, "git": git, "extra": extra}})
	got, err := cr.Process(context.Background(), img)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if got != "from git" {
		t.Errorf("Process() = %q, want %q", got, "from git")
	}
	if coca.Calls() != 0 || extra.Calls() != 0 {
		t.Errorf("unexpected calls: coca=%d extra=%d", coca.Calls(), extra.Calls())
	}
}

func TestProcessFlavor(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "img.png"), 8, 8)
	writeFile(t, filepath.Join(dir, "img.txt"), "x, y")

	blip := &fakeBackend{out: "a cat"}
	clip := &fakeInterrogator{out: "x, y, oil painting"}

	c := previewConfig()
	c.Existing = ExistingFlavor
	c.Passes = []string{"blip"}
	c.Clip = ClipModes{Medium: true}
	c.ClipMethod = ClipClassic

	cr := New(c, Deps{Backends: map[string]Backend{"blip": blip}, Clip: clip})
	got, err := cr.Process(context.Background(), img)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if want := "x, y, oil painting"; got != want {
		t.Errorf("Process() = %q, want %q", got, want)
	}
	if blip.Calls() != 0 {
		t.Errorf("blip called %d times, want 0", blip.Calls())
	}
	if clip.caption != "x, y" || clip.method != ClipClassic || clip.flavors != 8 {
		t.Errorf("interrogator got caption=%q method=%q flavors=%d", clip.caption, clip.method, clip.flavors)
	}

	// without an existing caption, the backends still run
	img2 := writeImage(t, filepath.Join(dir, "img2.png"), 8, 8)
	clip.out = "a cat, oil painting"
	got, err = cr.Process(context.Background(), img2)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if want := "a cat, oil painting"; got != want {
		t.Errorf("Process() = %q, want %q", got, want)
	}
	if blip.Calls() != 1 {
		t.Errorf("blip called %d times, want 1", blip.Calls())
	}
}

func TestProcessClipError(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "img.png"), 8, 8)

	c := previewConfig()
	c.Clip = ClipModes{Flavor: true}
	cr := New(c, Deps{
		Backends: map[string]Backend{"blip": &fakeBackend{out: "a cat"}},
		Clip:     &fakeInterrogator{err: errors.New("model gone")},
	})

	if _, err := cr.Process(context.Background(), img); err == nil {
		t.Errorf("Process() = nil error, want clip failure")
	}
}

func TestProcessExistingSources(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		caption  string
		filename bool
		metadata MetadataSource
		want     string
	}{
		{name: "filename", file: "red apple, fruit 2.png", filename: true, want: "red apple, fruit"},
		{name: "filename disabled", file: "red apple.png", want: ""},
		{name: "caption file wins", file: "red apple.png", caption: "green pear", filename: true, want: "green pear"},
		{name: "metadata", file: "img.png", metadata: fakeMetadata{out: "kw1, kw2"}, want: "kw1, kw2"},
		{name: "metadata error", file: "img.png", metadata: fakeMetadata{err: errors.New("no exif")}, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			img := writeImage(t, filepath.Join(dir, tc.file), 8, 8)
			if tc.caption != "" {
				writeFile(t, strings.TrimSuffix(img, ".png")+".txt", tc.caption)
			}

			c := previewConfig()
			c.Passes = nil
			c.Existing = ExistingCopy
			c.UseFilename = tc.filename
			c.UseMetadata = tc.metadata != nil

			cr := New(c, Deps{Metadata: tc.metadata})
			got, err := cr.Process(context.Background(), img)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			// copy with no new tags doubles the existing caption
			want := tc.want
			if want != "" {
				want = want + ", " + want
			}
			if got != want {
				t.Errorf("Process() = %q, want %q", got, want)
			}
		})
	}
}

func TestProcessWrite(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "photos", "cats", "img.png"), 8, 8)

	c := DefaultConfig()
	c.Existing = ExistingIgnore
	c.Passes = []string{"blip"}
	c.FolderTag = true
	c.Quiet = true

	cr := New(c, Deps{Backends: map[string]Backend{"blip": &fakeBackend{out: "a cat, sofa"}}})
	if _, err := cr.Process(context.Background(), img); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	bs, err := os.ReadFile(filepath.Join(dir, "photos", "cats", "img.txt"))
	if err != nil {
		t.Fatalf("read caption: %v", err)
	}
	if got, want := string(bs), "a cat, cats, sofa"; got != want {
		t.Errorf("caption = %q, want %q", got, want)
	}
}

func TestProcessOutputDir(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "in", "img.png"), 8, 8)
	out := filepath.Join(dir, "out")

	c := DefaultConfig()
	c.Existing = ExistingIgnore
	c.Passes = []string{"blip"}
	c.Output = out
	c.Extension = "caption"
	c.CopyImages = true

	cr := New(c, Deps{Backends: map[string]Backend{"blip": &fakeBackend{out: "a cat"}}})
	if _, err := cr.Process(context.Background(), img); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	bs, err := os.ReadFile(filepath.Join(out, "img.caption"))
	if err != nil {
		t.Fatalf("read caption: %v", err)
	}
	if string(bs) != "a cat" {
		t.Errorf("caption = %q, want %q", bs, "a cat")
	}
	if _, err := os.Stat(filepath.Join(out, "img.png")); err != nil {
		t.Errorf("image not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "in", "img.caption")); err == nil {
		t.Errorf("caption written next to image despite output folder")
	}
}

func TestProcessPreviewWritesNothing(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, filepath.Join(dir, "img.png"), 8, 8)

	cr := New(previewConfig(), Deps{Backends: map[string]Backend{"blip": &fakeBackend{out: "a cat"}}})
	if _, err := cr.Process(context.Background(), img); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "img.txt")); err == nil {
		t.Errorf("preview wrote a caption file")
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	writeFile(t, bad, "not an image")
	good := writeImage(t, filepath.Join(dir, "good.png"), 8, 8)
	flaky := writeImage(t, filepath.Join(dir, "flaky.png"), 8, 8)

	c := previewConfig()
	c.Workers = 2
	c.Clip = ClipModes{Flavor: true}

	clip := &fakeInterrogator{out: "a cat, warm light"}
	blip := &fakeBackend{fn: func(img *Image) (string, error) {
		if img.Path == flaky {
			return "a flaky cat", nil
		}
		return "a cat", nil
	}}

	cr := New(c, Deps{Backends: map[string]Backend{"blip": blip}, Clip: failingFor{Interrogator: clip, caption: "a flaky cat"}})
	results := cr.Run(context.Background(), []string{bad, flaky, good})

	if len(results) != 3 {
		t.Fatalf("Run() returned %d results, want 3", len(results))
	}
	if results[0].Path != bad || results[0].Err == nil {
		t.Errorf("results[0] = %+v, want load failure for %s", results[0], bad)
	}
	if results[1].Path != flaky || results[1].Err == nil {
		t.Errorf("results[1] = %+v, want clip failure for %s", results[1], flaky)
	}
	if results[2].Path != good || results[2].Err != nil || results[2].Caption != "a cat, warm light" {
		t.Errorf("results[2] = %+v, want caption for %s", results[2], good)
	}
}

// failingFor fails fast interrogation of one caption.
type failingFor struct {
	Interrogator
	caption string
}

func (f failingFor) InterrogateFast(ctx context.Context, caption string, img *Image, n int) (string, error) {
	if caption == f.caption {
		return "", errors.New("interrogator crashed")
	}
	return f.Interrogator.InterrogateFast(ctx, caption, img, n)
}
