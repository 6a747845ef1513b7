// Package imageutil holds the image plumbing shared by the capture
// and OCR layers: directory listing in page order, decoding, and the
// fixed-ratio crops the position extractor works on.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// supportedExtensions are the page-image formats accepted as input.
var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
}

// IsSupported reports whether path has an accepted image extension.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ListImages returns the image files in dir sorted by filename, which
// is the intended page order for capture output (page_001.png, ...).
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadImage decodes the image at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// CropBottom returns the bottom fraction of img (0 < frac <= 1). The
// navigation bar of a reader app lives in the bottom strip, so this is
// the crop both the position signal and end-marker checks use.
func CropBottom(img image.Image, frac float64) image.Image {
	if frac <= 0 || frac > 1 {
		return img
	}
	b := img.Bounds()
	top := b.Max.Y - int(float64(b.Dy())*frac)
	rect := image.Rect(b.Min.X, top, b.Max.X, b.Max.Y)

	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return img
	}
	return sub.SubImage(rect)
}

// EncodePNG renders img to PNG bytes for handoff to the OCR client.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Enhancer improves an image before an OCR retry. Enhancement is
// best-effort and never required for correctness; implementations may
// denoise, deskew or binarize.
type Enhancer interface {
	Enhance(img image.Image) image.Image
}

// NopEnhancer returns the image unchanged. Used where no enhancement
// backend is configured.
type NopEnhancer struct{}

func (NopEnhancer) Enhance(img image.Image) image.Image { return img }
