package captionr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Deps are the collaborators handed to a Captionr.
type Deps struct {
	// Backends maps a pass name to its handle.
	Backends map[string]Backend
	// Clip is consulted when any CLIP mode is enabled.
	Clip Interrogator
	// Metadata is an optional fallback source for the existing caption.
	Metadata MetadataSource
}

// Captionr captions images according to an immutable Config.
type Captionr struct {
	c   Config
	d   Deps
	asm *Assembler
}

// New returns a Captionr for c.
func New(c Config, d Deps) *Captionr {
	return &Captionr{c: c, d: d, asm: NewAssembler(c)}
}

// Process captions a single image and returns the final caption.
// Unless previewing, the caption is written to the configured location.
func (cr *Captionr) Process(ctx context.Context, path string) (string, error) {
	c := cr.c
	img, err := LoadImage(path, c.MaxDim)
	if err != nil {
		return "", fmt.Errorf("load: %w", err)
	}

	existing := cr.existing(path)
	raw := existing
	if existing == "" || c.Existing != ExistingFlavor {
		raw = cr.caption(ctx, img, existing)
	}
	raw = TrimPeriod(raw)

	var tags []string
	if c.Clip.Enabled() && cr.d.Clip != nil {
		f, err := c.ClipMethod.resolve(cr.d.Clip)
		if err != nil {
			return "", err
		}
		out, err := f(ctx, raw, img, c.ClipMaxFlavors)
		if err != nil {
			return "", fmt.Errorf("clip: %w", err)
		}
		klog.V(1).Infof("CLIP tags: %s", out)
		tags = SplitTags(out)
	} else {
		tags = SplitTags(raw)
	}

	var folders []string
	if c.FolderTag {
		folders = ParentFolders(path, c.FolderTagLevels, c.FolderTagStop)
	}

	text := cr.asm.Assemble(tags, existing, folders)
	if c.Preview {
		klog.Infof("PREVIEW: %s", text)
		klog.Infof("No caption file written.")
		return text, nil
	}

	if err := cr.write(path, text); err != nil {
		return "", err
	}
	return text, nil
}

// existing returns the current caption for an image: its caption file, or
// failing that the file name or embedded metadata when enabled.
func (cr *Captionr) existing(path string) string {
	c := cr.c
	var s string
	bs, err := os.ReadFile(c.ExistingPath(path))
	switch {
	case err == nil:
		s = string(bs)
	case !errors.Is(err, fs.ErrNotExist):
		klog.Errorf("reading caption file for %s: %v", path, err)
	}

	if s == "" && c.UseFilename {
		s = FilenameCaption(path)
	}

	if s == "" && c.UseMetadata && cr.d.Metadata != nil {
		m, err := cr.d.Metadata.Caption(path)
		if err != nil {
			klog.Warningf("metadata for %s: %v", path, err)
		}
		s = m
	}
	return s
}

// caption walks the backends in fallback order. The first caption free of
// fail phrases wins; otherwise the last caption produced is returned.
func (cr *Captionr) caption(ctx context.Context, img *Image, existing string) string {
	c := cr.c
	out := existing
	for _, name := range c.ModelOrder {
		b, ok := cr.d.Backends[name]
		if !ok || !c.Enabled(name) {
			continue
		}

		klog.V(1).Infof("Getting %s caption for %s", name, img.Path)
		s, err := b.Caption(ctx, img)
		if err != nil {
			klog.Errorf("%s captioning %s: %v", name, img.Path, err)
			continue
		}
		out = s
		klog.V(1).Infof("%s caption: %s", name, s)

		if p, failed := failPhrase(s, c.FailPhrases); failed {
			klog.Warningf("%s caption was %q: fail phrase %q detected", name, s, p)
			continue
		}
		return out
	}
	return out
}

func failPhrase(s string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return p, true
		}
	}
	return "", false
}

func (cr *Captionr) write(path string, text string) error {
	c := cr.c
	out := c.CaptionPath(path)
	if c.Output != "" {
		if err := os.MkdirAll(c.Output, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}

	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write caption: %w", err)
	}
	klog.V(1).Infof("Wrote %s", out)

	if !c.Quiet {
		klog.Infof("%s: %s", out, text)
	}

	if c.CopyImages && c.Output != "" {
		dest := filepath.Join(c.Output, filepath.Base(path))
		if dest != path {
			if err := copy.Copy(path, dest); err != nil {
				return fmt.Errorf("copy image: %w", err)
			}
		}
	}
	return nil
}
