// Package position recovers the reading-progress indicator ("position
// N of M (P%)") that viewer apps render in their navigation bar, by
// OCRing a fixed bottom strip of each page screenshot. Absence of a
// signal is an expected outcome (covers, blank pages), not an error.
package position

import (
	"context"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"booktext/internal/imageutil"
)

// Signal is a parsed position indicator. Pattern records which
// recognition pattern matched (1-based), mostly for logging.
type Signal struct {
	Current    int
	Total      int
	Percentage int
	Pattern    int
}

// navBarFraction is the slice of the page the navigation bar occupies.
const navBarFraction = 0.1

// endMarkerFraction is the larger bottom slice scanned for end-of-book
// markers, which can appear above the navigation bar.
const endMarkerFraction = 0.3

// navWhitelist restricts strip OCR to the characters a position
// indicator is made of.
const navWhitelist = "0123456789/%() "

// maxPlausibleTotal bounds total-page estimates; anything above it is
// treated as an OCR misread.
const maxPlausibleTotal = 10000

// patterns are tried in order; the first match wins. Localized forms
// come before the bare digits-only form so a line matching both parses
// through the more specific pattern.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)位置No\.?\s*(\d+)\s*/\s*(\d+)\s*\((\d+)%\)`), // Japanese: 位置No. 120/400 (30%)
	regexp.MustCompile(`(?i)Location\s+(\d+)\s+of\s+(\d+)\s*\((\d+)%\)`), // English: Location 120 of 400 (30%)
	regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*\((\d+)%\)`),                 // bare: 120/400 (30%)
	regexp.MustCompile(`(\d+)\s+/\s+(\d+)\s+(\d+)%`),                     // spaced: 120 / 400 30%
	regexp.MustCompile(`(\d{3,})\s*/\s*(\d{3,})`),                        // digits only: 120/400 (percentage computed)
}

// endMarkers end a book when any of them appears in the bottom region.
// Mixed languages because the marker text depends on the book, not the
// viewer locale.
var endMarkers = []string{
	"おわり", "終わり", "完", "END", "end",
	"奥付", "参考文献", "索引", "著者略歴",
	"Bibliography", "Index", "About the Author",
	"100%", "位置No.", "Location",
}

// StripReader OCRs an image with a single fixed configuration and an
// optional character whitelist. *ocr.TesseractEngine satisfies it.
type StripReader interface {
	ReadStrip(ctx context.Context, img image.Image, whitelist string) (string, error)
}

// Extractor parses position signals and end markers from screenshots.
type Extractor struct {
	reader StripReader
	log    zerolog.Logger
}

// NewExtractor returns an extractor backed by the given strip reader.
func NewExtractor(reader StripReader, log zerolog.Logger) *Extractor {
	return &Extractor{reader: reader, log: log}
}

// ExtractPosition crops the navigation bar off the bottom of img, OCRs
// it with a digit whitelist and matches the known indicator patterns.
// The second return is false when no pattern matched, which is routine
// for pages without a navigation bar.
func (e *Extractor) ExtractPosition(ctx context.Context, img image.Image) (Signal, bool) {
	strip := imageutil.CropBottom(img, navBarFraction)

	text, err := e.reader.ReadStrip(ctx, strip, navWhitelist)
	if err != nil {
		e.log.Warn().Err(err).Msg("Navigation strip OCR failed")
		return Signal{}, false
	}
	e.log.Debug().Str("text", strings.TrimSpace(text)).Msg("Navigation strip text")

	return ParsePosition(text)
}

// ParsePosition matches text against the indicator patterns. Exposed
// separately so pattern precedence is testable on crafted OCR output.
func ParsePosition(text string) (Signal, bool) {
	for i, pattern := range patterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		current, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}

		percentage := 0
		if len(m) >= 4 {
			percentage, _ = strconv.Atoi(m[3])
		} else if total > 0 {
			percentage = current * 100 / total
		}

		return Signal{
			Current:    current,
			Total:      total,
			Percentage: percentage,
			Pattern:    i + 1,
		}, true
	}
	return Signal{}, false
}

// EstimateTotal derives a total page count from the percentage signal
// and the page the capture loop is currently on. The estimate is
// rejected (false) when the percentage is unusable or the result fails
// the sanity bounds.
func EstimateTotal(sig Signal, currentPage int) (int, bool) {
	if sig.Percentage <= 0 {
		return 0, false
	}

	estimated := int(float64(currentPage) / (float64(sig.Percentage) / 100))
	if estimated < currentPage || estimated > maxPlausibleTotal {
		return 0, false
	}
	return estimated, true
}

// DetectEndMarker OCRs the bottom region of img and reports whether
// any end-of-book marker appears as a case-insensitive substring.
func (e *Extractor) DetectEndMarker(ctx context.Context, img image.Image) bool {
	region := imageutil.CropBottom(img, endMarkerFraction)

	text, err := e.reader.ReadStrip(ctx, region, "")
	if err != nil {
		e.log.Warn().Err(err).Msg("End marker OCR failed")
		return false
	}

	lower := strings.ToLower(text)
	for _, marker := range endMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			e.log.Info().Str("marker", marker).Msg("End-of-book marker detected")
			return true
		}
	}
	return false
}
