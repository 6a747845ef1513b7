package ocr

import (
	"context"
	"fmt"
	"image"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"booktext/internal/imageutil"
)

// VisionEngine implements Engine using the Google Cloud Vision API's
// document text detection. It is an alternative provider for runs
// where a local Tesseract install is unavailable or its quality is
// insufficient; it has no segmentation variants, so a page is a single
// API round trip.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates the engine with credentials from the
// environment: GOOGLE_CREDENTIALS (inline JSON) is checked first, then
// GOOGLE_APPLICATION_CREDENTIALS (file path), then application default
// credentials.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionEngine{client: client}, nil
}

// ExtractText sends the image for document text detection. API
// failures degrade to the sentinel marker so a single bad round trip
// does not fail a page; transport problems on the encoded image itself
// are returned as errors.
func (v *VisionEngine) ExtractText(ctx context.Context, img image.Image) (string, error) {
	const op = "ExtractText"

	if img == nil {
		return "", &OCRError{Op: op, Err: ErrNilImage}
	}

	text, _, err := v.annotate(ctx, img)
	if err != nil {
		return FigureOnlySentinel, nil
	}
	if text == "" {
		return FigureOnlySentinel, nil
	}
	return postprocess(text), nil
}

// Confidence runs a detection pass and returns the mean word
// confidence scaled to [0,100].
func (v *VisionEngine) Confidence(ctx context.Context, img image.Image) float64 {
	if img == nil {
		return 0
	}
	_, conf, err := v.annotate(ctx, img)
	if err != nil {
		return 0
	}
	return conf
}

func (v *VisionEngine) annotate(ctx context.Context, img image.Image) (string, float64, error) {
	const op = "annotate"

	data, err := imageutil.EncodePNG(img)
	if err != nil {
		return "", 0, WrapOCRError(op, err, "encode image")
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", 0, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return "", 0, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return "", 0, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", annotation.Error.Message))
	}
	if annotation.FullTextAnnotation == nil {
		return "", 0, WrapOCRError(op, ErrEmptyText, "")
	}

	var confidenceSum float64
	var confidenceCount int
	for _, page := range annotation.FullTextAnnotation.Pages {
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				for _, w := range paragraph.Words {
					if w.Confidence > 0 {
						confidenceSum += float64(w.Confidence)
						confidenceCount++
					}
				}
			}
		}
	}

	var avgConfidence float64
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float64(confidenceCount) * 100
	}

	return annotation.FullTextAnnotation.Text, avgConfidence, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
