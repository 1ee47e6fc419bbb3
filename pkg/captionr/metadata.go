package captionr

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

// MetadataSource provides a fallback caption from an image's embedded metadata.
type MetadataSource interface {
	Caption(path string) (string, error)
}

// ExifReader reads Keywords and ImageDescription through a long-running exiftool process.
type ExifReader struct {
	// exiftool talks to a single child process over pipes
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewExifReader starts exiftool.
func NewExifReader() (*ExifReader, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &ExifReader{et: et}, nil
}

// Caption returns the image keywords joined by commas, or else its description.
func (r *ExifReader) Caption(path string) (string, error) {
	r.mu.Lock()
	fis := r.et.ExtractMetadata(path)
	r.mu.Unlock()

	if len(fis) == 0 {
		return "", fmt.Errorf("no metadata for %q", path)
	}

	fi := fis[0]
	if fi.Err != nil {
		return "", fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	kws, err := fi.GetStrings("Keywords")
	if err == nil && len(kws) > 0 {
		return strings.Join(kws, ", "), nil
	}
	klog.V(2).Infof("no keywords for %s: %v", path, err)

	desc, err := fi.GetString("ImageDescription")
	if err != nil {
		klog.V(2).Infof("no description for %s: %v", path, err)
		return "", nil
	}
	return strings.TrimSpace(desc), nil
}

// Close stops the exiftool process.
func (r *ExifReader) Close() error {
	return r.et.Close()
}

// FilenameCaption derives a caption from a file name, keeping only letters, spaces and commas.
func FilenameCaption(path string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' || r == ',' {
			return r
		}
		return -1
	}, stem(filepath.Base(path)))
}
