package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
	"booktext/internal/ocr"
)

func TestRetryRecoversAfterFailures(t *testing.T) {
	stats := &Stats{}
	p := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond, Stats: stats, Log: zerolog.Nop()}

	attempts := 0
	err := p.Do(cancel.NewToken(), "flaky", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v after eventual success", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if stats.Recovered != 1 {
		t.Errorf("Recovered = %d, want 1", stats.Recovered)
	}
	if stats.TotalErrors != 0 {
		t.Errorf("TotalErrors = %d, want 0 for a recovered operation", stats.TotalErrors)
	}
}

func TestRetryExhaustsAndRecordsError(t *testing.T) {
	stats := &Stats{}
	p := RetryPolicy{MaxRetries: 2, Delay: time.Millisecond, Stats: stats, Log: zerolog.Nop()}

	wantErr := ocr.WrapOCRError("ExtractText", ocr.ErrOCRFailed, "bad page")
	attempts := 0
	err := p.Do(cancel.NewToken(), "doomed", func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, ocr.ErrOCRFailed) {
		t.Fatalf("Do = %v, want the OCR failure", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if stats.TotalErrors != 1 || stats.OCRErrors != 1 {
		t.Errorf("stats = %+v, want one OCR error", stats)
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	token := cancel.NewToken()
	p := RetryPolicy{MaxRetries: 5, Delay: time.Minute, Log: zerolog.Nop()}

	attempts := 0
	start := time.Now()
	err := p.Do(token, "cancelled", func() error {
		attempts++
		token.Cancel("test")
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected the last error back")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do waited %s despite cancellation", elapsed)
	}
}

func TestRetryCancelledBeforeFirstAttempt(t *testing.T) {
	token := cancel.NewToken()
	token.Cancel("test")

	p := RetryPolicy{Log: zerolog.Nop()}
	err := p.Do(token, "never ran", func() error {
		t.Fatal("fn ran on a cancelled token")
		return nil
	})
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("Do = %v, want ErrInterrupted", err)
	}
}
