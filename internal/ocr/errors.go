package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrNilImage is returned when an engine is handed no image.
	ErrNilImage = errors.New("no image provided")

	// ErrEmptyText is returned by the vision engine when the API
	// detected no text at all in the image.
	ErrEmptyText = errors.New("image contains no readable text")

	// ErrOCRFailed is returned when a provider fails at the transport
	// level (API call, client setup) rather than on page content.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned by the vision engine when
	// neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is
	// configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")
)

// OCRError wraps errors with additional context about the failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "ExtractText").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}
