package batch

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"booktext/internal/ocr"
)

// Stats counts failures by category across a batch run. Safe for
// concurrent use; the coordinator's workers record into it directly.
type Stats struct {
	mu sync.Mutex

	TotalErrors   int
	OCRErrors     int
	FileErrors    int
	UnknownErrors int
	Recovered     int
}

// RecordError categorizes and counts err.
func (s *Stats) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalErrors++
	switch {
	case errors.Is(err, ocr.ErrOCRFailed), errors.Is(err, ocr.ErrEmptyText), errors.Is(err, ocr.ErrNilImage):
		s.OCRErrors++
	case isFileError(err):
		s.FileErrors++
	default:
		s.UnknownErrors++
	}
}

// RecordRecovery counts an operation that failed and then succeeded on
// a retry.
func (s *Stats) RecordRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Recovered++
}

func isFileError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

// Log writes the final tallies at a level matching their severity.
func (s *Stats) Log(log zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := zerolog.InfoLevel
	if s.TotalErrors > 0 {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Int("total_errors", s.TotalErrors).
		Int("ocr_errors", s.OCRErrors).
		Int("file_errors", s.FileErrors).
		Int("unknown_errors", s.UnknownErrors).
		Int("recovered", s.Recovered).
		Msg("Batch error statistics")
}
