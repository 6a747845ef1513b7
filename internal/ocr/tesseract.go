package ocr

import (
	"context"
	"image"
	"regexp"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"booktext/internal/imageutil"
)

// Page-segmentation variants tried in order, most general first. The
// ordering matters: full-page automatic segmentation succeeds on most
// text pages, and the tail entries only earn their cost on pages the
// head entries fail.
var defaultVariants = []int{3, 6, 4, 1, 11, 8, 7, 12, 13}

// sparseVariants are the word/line-level configurations used by the
// fallback pass for figure captions and labels.
var sparseVariants = []int{8, 7, 12, 13}

// word is a single recognized token with its confidence in [0,100].
type word struct {
	Text       string
	Confidence float64
}

// recognizeFunc runs one Tesseract configuration over an image and
// returns the recognized words. It is a seam so the selection logic
// can be tested without libtesseract.
type recognizeFunc func(ctx context.Context, img image.Image, psm int, whitelist string) ([]word, error)

// TesseractEngine implements Engine using the gosseract client. A
// fresh client is created per recognition pass (the pdf toolchain does
// the same; clients are cheap relative to recognition).
type TesseractEngine struct {
	languages []string
	enhancer  imageutil.Enhancer
	recognize recognizeFunc
	log       zerolog.Logger
}

// NewTesseractEngine constructs the default engine. languages is a
// "+"-separated Tesseract language spec such as "jpn+eng".
func NewTesseractEngine(languages string, enhancer imageutil.Enhancer, log zerolog.Logger) *TesseractEngine {
	if enhancer == nil {
		enhancer = imageutil.NopEnhancer{}
	}
	e := &TesseractEngine{
		languages: strings.Split(languages, "+"),
		enhancer:  enhancer,
		log:       log,
	}
	e.recognize = e.recognizeWithClient
	return e
}

func (e *TesseractEngine) recognizeWithClient(ctx context.Context, img image.Image, psm int, whitelist string) ([]word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := imageutil.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, WrapOCRError("recognize", err, "set image")
	}
	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return nil, WrapOCRError("recognize", err, "set languages")
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return nil, WrapOCRError("recognize", err, "set page segmentation mode")
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return nil, WrapOCRError("recognize", err, "set whitelist")
		}
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, WrapOCRError("recognize", err, "get word boxes")
	}

	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{Text: b.Word, Confidence: b.Confidence})
	}
	return words, nil
}

// ExtractText tries each page-segmentation variant in order, keeping
// the best candidate by confidence, and exits early once a candidate
// is clearly good enough. If nothing sufficient is found it falls back
// to the sparse pass, then to an enhanced retry, and finally to the
// sentinel marker. Recognition failures never surface as errors.
func (e *TesseractEngine) ExtractText(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", &OCRError{Op: "ExtractText", Err: ErrNilImage}
	}

	var bestText string
	var bestConf float64

	for i, psm := range defaultVariants {
		words, err := e.recognize(ctx, img, psm, "")
		if err != nil {
			// A failing variant counts as zero confidence; the rest of
			// the ladder still runs.
			e.log.Debug().Err(err).Int("psm", psm).Msg("OCR variant failed")
			continue
		}

		text, conf := assemble(words, 0)

		if isSufficient(text, conf) {
			bestText = text
			bestConf = conf
			if conf > 85 && len(strings.TrimSpace(text)) > 10 {
				e.log.Debug().
					Int("variant", i+1).
					Int("total_variants", len(defaultVariants)).
					Float64("confidence", conf).
					Msg("High confidence, stopping variant search early")
				break
			}
			continue
		}

		if conf > bestConf && strings.TrimSpace(text) != "" {
			bestText = text
			bestConf = conf
		}
	}

	if strings.TrimSpace(bestText) == "" {
		bestText = e.extractSparse(ctx, img, true)
	}

	e.log.Debug().Float64("confidence", bestConf).Msg("OCR extraction finished")
	return postprocess(bestText), nil
}

// extractSparse is the figure/caption fallback: word- and line-level
// variants with a looser per-word confidence threshold. When enhance
// is set and the plain pass fails, the image is enhanced and the pass
// retried once before returning the sentinel.
func (e *TesseractEngine) extractSparse(ctx context.Context, img image.Image, enhance bool) string {
	var parts []string

	for _, psm := range sparseVariants {
		words, err := e.recognize(ctx, img, psm, "")
		if err != nil {
			e.log.Debug().Err(err).Int("psm", psm).Msg("Sparse OCR variant failed")
			continue
		}

		text, conf := assemble(words, 30)
		if strings.TrimSpace(text) == "" || conf <= 40 {
			continue
		}

		parts = append(parts, strings.TrimSpace(text))
		e.log.Debug().Float64("confidence", conf).Msg("Sparse extraction succeeded")

		if len(strings.TrimSpace(text)) > 20 && conf > 60 {
			break
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	if enhance {
		e.log.Debug().Msg("Sparse extraction failed, retrying with enhanced image")
		if enhanced := e.enhancer.Enhance(img); enhanced != nil {
			if text := e.extractSparse(ctx, enhanced, false); text != FigureOnlySentinel {
				return text
			}
		}
	}

	return FigureOnlySentinel
}

// Confidence replays the default variant only.
func (e *TesseractEngine) Confidence(ctx context.Context, img image.Image) float64 {
	if img == nil {
		return 0
	}
	words, err := e.recognize(ctx, img, defaultVariants[0], "")
	if err != nil {
		return 0
	}
	_, conf := assemble(words, 0)
	return conf
}

// ReadStrip OCRs img with a single fixed configuration, optionally
// limited to a character whitelist. The position extractor uses this
// on navigation-bar crops.
func (e *TesseractEngine) ReadStrip(ctx context.Context, img image.Image, whitelist string) (string, error) {
	words, err := e.recognize(ctx, img, 6, whitelist)
	if err != nil {
		return "", err
	}
	text, _ := assemble(words, 0)
	return text, nil
}

// assemble joins words above the confidence threshold and returns the
// text with the mean confidence of the retained words.
func assemble(words []word, minConf float64) (string, float64) {
	var parts []string
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence > minConf && strings.TrimSpace(w.Text) != "" {
			parts = append(parts, w.Text)
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return "", 0
	}
	return strings.Join(parts, " "), sum / float64(n)
}

// isSufficient applies the layered confidence/length rule deciding
// whether a candidate is good enough to stop searching variants.
func isSufficient(text string, confidence float64) bool {
	length := len(strings.TrimSpace(text))
	if length == 0 {
		return false
	}
	switch {
	case confidence > 80 && length > 5:
		return true
	case confidence > 70 && length > 15:
		return true
	case confidence > 60 && length > 30:
		return true
	}
	return false
}

var repeatedNewlines = regexp.MustCompile(`\n+`)

func postprocess(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(repeatedNewlines.ReplaceAllString(text, "\n"))
}
