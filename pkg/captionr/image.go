package captionr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"slices"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/webp"
	"k8s.io/klog/v2"
)

// JPEGQuality is the quality used when re-encoding images for a backend.
var JPEGQuality = 85

var imageExts = []string{".jpeg", ".jpg", ".jpe", ".png", ".webp"}

// Image is a decoded source image, re-encoded for sending to a model.
type Image struct {
	Path     string
	Width    int
	Height   int
	MIMEType string
	Data     []byte
}

// IsImage returns true if path has a supported image extension.
func IsImage(path string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}

// LoadImage decodes the image at path and encodes it as JPEG, scaled down so
// that neither side exceeds maxDim. A maxDim of 0 keeps the original size.
func LoadImage(path string, maxDim int) (*Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image: %+v", b)
	}

	img = fit(img, maxDim)
	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(JPEGQuality)(&buf, img); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return &Image{
		Path:     path,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		MIMEType: "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}

func fit(i image.Image, maxDim int) image.Image {
	x := i.Bounds().Dx()
	y := i.Bounds().Dy()
	if maxDim <= 0 || (x <= maxDim && y <= maxDim) {
		return i
	}

	if x >= y {
		y = max(1, y*maxDim/x)
		x = maxDim
	} else {
		x = max(1, x*maxDim/y)
		y = maxDim
	}

	klog.V(2).Infof("resizing %+v to %dx%d", i.Bounds(), x, y)
	return transform.Resize(i, x, y, transform.Lanczos)
}
