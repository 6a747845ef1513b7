package capture

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
	"booktext/internal/imageutil"
	"booktext/internal/position"
)

// SignalSource reads progress signals off a page screenshot.
// *position.Extractor satisfies it.
type SignalSource interface {
	ExtractPosition(ctx context.Context, img image.Image) (position.Signal, bool)
	DetectEndMarker(ctx context.Context, img image.Image) bool
}

// Controller runs the capture loop. The loop is single-threaded;
// every blocking step (screenshot, delay, review) sits at an iteration
// boundary where cancellation is checked.
type Controller struct {
	opts     Options
	screen   Screen
	signals  SignalSource
	prompter Prompter
	log      zerolog.Logger

	// sleep is swappable in tests to avoid real page-turn delays.
	sleep func(d time.Duration, token *cancel.Token) bool
}

// NewController wires a capture loop over the given screen, signal
// source and review prompter.
func NewController(opts Options, screen Screen, signals SignalSource, prompter Prompter, log zerolog.Logger) *Controller {
	opts.setDefaults()
	return &Controller{
		opts:     opts,
		screen:   screen,
		signals:  signals,
		prompter: prompter,
		log:      log.With().Str("component", "capture").Str("book", opts.Book).Logger(),
		sleep:    waitOrCancelled,
	}
}

// waitOrCancelled sleeps for d unless the token fires first. Returns
// false when cancelled.
func waitOrCancelled(d time.Duration, token *cancel.Token) bool {
	if d <= 0 {
		return !token.Cancelled()
	}
	select {
	case <-time.After(d):
		return true
	case <-token.Done():
		return false
	}
}

// Run executes the capture loop until the book ends, the operator
// stops it, or the token is cancelled. It returns the number of pages
// captured; the count is valid on every return path. Only structural
// failures (window missing, page turn failing) produce an error; a
// single failed screenshot is logged and skipped.
func (c *Controller) Run(ctx context.Context, token *cancel.Token) (int, error) {
	if err := c.screen.Locate(ctx); err != nil {
		return 0, fmt.Errorf("locating viewer window: %w", err)
	}

	sess := newSession(c.opts)
	c.log.Info().
		Int("start_page", sess.CurrentPage).
		Int("max_pages", c.opts.MaxPages).
		Int("check_interval", sess.checkInterval).
		Msg("Capture starting")

	if !c.countdown(token) {
		return 0, nil
	}

	for {
		if token.Cancelled() {
			c.log.Warn().Str("reason", token.Reason()).Msg("Capture interrupted")
			break
		}

		path := filepath.Join(c.opts.OutputDir, fmt.Sprintf("page_%03d.png", sess.CurrentPage))

		if !c.sleep(c.opts.ScreenshotDelay, token) {
			break
		}

		if err := c.screen.Capture(ctx, path); err != nil {
			c.log.Error().Err(err).Int("page", sess.CurrentPage).Msg("Screenshot failed, skipping page")
		} else {
			sess.Captured++
			c.log.Debug().Int("page", sess.CurrentPage).Str("file", path).Msg("Page captured")

			done, err := c.inspect(ctx, sess, path)
			if err != nil {
				c.log.Warn().Err(err).Int("page", sess.CurrentPage).Msg("Page inspection failed")
			} else if done {
				break
			}
		}

		if sess.maxPages > 0 && sess.Captured >= sess.maxPages {
			if c.ceilingReached(ctx, sess, path) {
				break
			}
		}

		if err := c.screen.Advance(ctx, c.opts.AdvanceKey); err != nil {
			c.log.Error().Err(err).Msg("Page turn failed, stopping")
			return sess.Captured, fmt.Errorf("turning page: %w", err)
		}

		if !c.sleep(c.opts.TurnDelay, token) {
			break
		}
		sess.CurrentPage++

		if sess.Captured > 0 && sess.Captured%10 == 0 {
			c.log.Info().Int("captured", sess.Captured).Msg("Capture progress")
		}
	}

	c.log.Info().Int("captured", sess.Captured).Msg("Capture finished")
	return sess.Captured, nil
}

func (c *Controller) countdown(token *cancel.Token) bool {
	if c.opts.Countdown <= 0 {
		return true
	}
	c.log.Info().Dur("countdown", c.opts.Countdown).Msg("Capture begins shortly, focus the viewer window")
	return c.sleep(c.opts.Countdown, token)
}

// inspect runs the periodic progress check and the per-page end-marker
// scan on the screenshot just taken. It returns true when the loop
// should terminate.
func (c *Controller) inspect(ctx context.Context, sess *Session, path string) (bool, error) {
	img, err := imageutil.LoadImage(path)
	if err != nil {
		return false, err
	}

	if sess.Captured%sess.checkInterval == 0 {
		sig, ok := c.signals.ExtractPosition(ctx, img)
		if ok {
			if c.opts.AutoEstimate {
				c.updateEstimate(sess, sig)
			}

			if sig.Percentage >= reviewThreshold && !sess.autoFinish {
				c.log.Info().Int("percentage", sig.Percentage).Msg("Book nearly complete, asking operator")
				switch c.prompter.Review(Progress{Page: sess.CurrentPage, Signal: sig, HasSignal: true}) {
				case DecisionStop:
					return true, nil
				case DecisionAutoFinish:
					sess.enterAutoFinish()
					c.log.Info().Msg("Auto-finish mode enabled")
				}
			}

			if sig.Percentage >= completeThreshold {
				c.log.Info().Msg("Position indicator reports 100%")
				return true, nil
			}
		}
	}

	if c.signals.DetectEndMarker(ctx, img) {
		c.log.Info().Msg("End-of-book marker detected")
		return true, nil
	}
	return false, nil
}

// updateEstimate folds a fresh indicator reading into the page ceiling.
// The first accepted estimate sets the ceiling; later readings replace
// it only on a substantial change, and never when the caller supplied
// an explicit maximum.
func (c *Controller) updateEstimate(sess *Session, sig position.Signal) {
	estimate, ok := position.EstimateTotal(sig, sess.CurrentPage)
	if !ok {
		return
	}

	withMargin := int(float64(estimate) * c.opts.SafetyMargin)

	if sess.rawEstimate == 0 {
		sess.rawEstimate = estimate
		if sess.userMax == 0 {
			sess.maxPages = withMargin
		}
		c.log.Info().Int("estimated_total", withMargin).Msg("Total pages estimated (safety margin applied)")
		return
	}

	if abs(estimate-sess.rawEstimate) > estimateDelta && sess.userMax == 0 {
		sess.rawEstimate = estimate
		sess.maxPages = withMargin
		c.log.Info().Int("estimated_total", withMargin).Msg("Total page estimate updated")
	}
}

// ceilingReached handles hitting the effective max-pages ceiling. If
// the indicator says the book is still far from done, the operator is
// asked whether to extend. Returns true when the loop should stop.
func (c *Controller) ceilingReached(ctx context.Context, sess *Session, path string) bool {
	c.log.Info().Int("max_pages", sess.maxPages).Msg("Page ceiling reached")

	img, err := imageutil.LoadImage(path)
	if err != nil {
		return true
	}

	sig, ok := c.signals.ExtractPosition(ctx, img)
	if !ok || sig.Percentage >= ceilingReviewBelow {
		return true
	}

	c.log.Warn().Int("percentage", sig.Percentage).Msg("Ceiling reached well before the indicator says the book ends")
	switch c.prompter.Review(Progress{Page: sess.CurrentPage, Signal: sig, HasSignal: true}) {
	case DecisionStop:
		return true
	case DecisionAutoFinish:
		sess.enterAutoFinish()
		c.log.Info().Msg("Auto-finish mode enabled")
		return false
	default:
		sess.maxPages = int(float64(sess.maxPages) * ceilingExtension)
		c.log.Info().Int("max_pages", sess.maxPages).Msg("Page ceiling extended")
		return false
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
