// Package ocr provides OCR (Optical Character Recognition) for page
// screenshots.
//
// The primary engine is Tesseract (via gosseract), which tries an
// ordered list of page-segmentation variants and keeps the best
// candidate by confidence, with a sparse-text fallback pass for
// figure-heavy pages. A Google Cloud Vision engine is available as an
// alternative provider for single-shot recognition.
//
// Engines never fail a page on recognition problems: the worst case is
// the fixed FigureOnlySentinel marker. Errors are reserved for
// structural conditions (nil image, client construction, API
// transport).
package ocr

import (
	"context"
	"image"
	"time"
)

// FigureOnlySentinel marks pages where no variant produced usable
// text. It is a fixed string so downstream consumers can recognize
// figure-only pages in the concatenated output.
const FigureOnlySentinel = "[figure page - no extractable text]"

// Engine is the contract the capture and batch layers consume.
type Engine interface {
	// ExtractText runs the engine's recognition pipeline and returns
	// the best text found. Recognition failures degrade to the
	// sentinel marker rather than an error.
	ExtractText(ctx context.Context, img image.Image) (string, error)

	// Confidence replays the engine's default configuration only and
	// returns the mean word confidence in [0,100], for reporting.
	Confidence(ctx context.Context, img image.Image) float64
}

// Result is one processed page: its stable position in the input
// ordering, the extracted text, and processing metadata. The parallel
// coordinator re-orders Results by Index before returning them.
type Result struct {
	Index          int           `json:"index"`
	Text           string        `json:"text"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime time.Duration `json:"processing_time"`
}
