package imageutil

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestIsSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"page_001.png", true},
		{"page_001.PNG", true},
		{"scan.jpg", true},
		{"scan.jpeg", true},
		{"scan.bmp", true},
		{"scan.tiff", true},
		{"notes.txt", false},
		{"archive.pdf", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		if got := IsSupported(tt.path); got != tt.want {
			t.Errorf("IsSupported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestListImagesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page_003.png", "page_001.png", "notes.txt", "page_002.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}

	want := []string{
		filepath.Join(dir, "page_001.png"),
		filepath.Join(dir, "page_002.png"),
		filepath.Join(dir, "page_003.png"),
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d: %v", len(files), len(want), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestLoadImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 12, 8))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 8 {
		t.Errorf("bounds = %v, want 12x8", b)
	}

	if _, err := LoadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("LoadImage on a missing file returned nil error")
	}
}

func TestCropBottom(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 200))

	strip := CropBottom(img, 0.1)
	b := strip.Bounds()
	if b.Dy() != 20 {
		t.Errorf("strip height = %d, want 20", b.Dy())
	}
	if b.Max.Y != 200 || b.Min.Y != 180 {
		t.Errorf("strip spans y %d..%d, want 180..200", b.Min.Y, b.Max.Y)
	}
	if b.Dx() != 100 {
		t.Errorf("strip width = %d, want the full 100", b.Dx())
	}

	// Out-of-range fractions leave the image alone.
	if got := CropBottom(img, 0); got.Bounds() != img.Bounds() {
		t.Error("CropBottom(0) altered the image")
	}
	if got := CropBottom(img, 1.5); got.Bounds() != img.Bounds() {
		t.Error("CropBottom(1.5) altered the image")
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(image.NewGray(image.Rect(0, 0, 5, 5)))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding the encoded bytes: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 5 || b.Dy() != 5 {
		t.Errorf("round-tripped bounds = %v", b)
	}
}
