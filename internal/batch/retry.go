package batch

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
)

// Retry policy defaults, applied to per-page operations that fail on
// transient conditions (OCR hiccups, slow filesystem).
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// ErrInterrupted reports that a run stopped on a cancellation request
// rather than finishing or failing.
var ErrInterrupted = errors.New("interrupted")

// RetryPolicy retries an operation with a linearly growing delay
// between attempts.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Stats      *Stats
	Log        zerolog.Logger
}

// Do runs fn up to MaxRetries times, waiting Delay × attempt between
// tries. Cancellation aborts the wait and returns the last error. A
// success after at least one failure is counted as a recovery.
func (p RetryPolicy) Do(token *cancel.Token, op string, fn func() error) error {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if token.Cancelled() {
			if lastErr != nil {
				return lastErr
			}
			return ErrInterrupted
		}

		err := fn()
		if err == nil {
			if attempt > 1 && p.Stats != nil {
				p.Stats.RecordRecovery()
			}
			return nil
		}
		lastErr = err

		if attempt < retries {
			p.Log.Warn().
				Err(err).
				Str("operation", op).
				Int("attempt", attempt).
				Int("max_retries", retries).
				Msg("Operation failed, retrying")

			select {
			case <-time.After(delay * time.Duration(attempt)):
			case <-token.Done():
				return lastErr
			}
		}
	}

	if p.Stats != nil {
		p.Stats.RecordError(lastErr)
	}
	return lastErr
}
