// Package capture drives a paginated viewer through a book: screenshot,
// read the progress indicator, decide whether the book has ended, turn
// the page, repeat. Termination without ground truth is heuristic, so
// the loop escalates to an interactive review at uncertain boundaries.
package capture

import "time"

// Default loop parameters. The thresholds are tunable via Options
// rather than fixed, since they are workload heuristics.
const (
	DefaultCheckInterval   = 20
	DefaultSafetyMargin    = 1.2
	DefaultTurnDelay       = 2 * time.Second
	DefaultScreenshotDelay = 500 * time.Millisecond
	DefaultCountdown       = 5 * time.Second

	// autoFinishInterval replaces the check interval once the
	// operator requests running out the rest of the book.
	autoFinishInterval = 5

	// reviewThreshold and completeThreshold are the percentages at
	// which the loop asks for confirmation and stops outright.
	reviewThreshold   = 95
	completeThreshold = 100

	// ceilingReviewBelow triggers a review when the page ceiling is
	// hit but the indicator says the book is not nearly done.
	ceilingReviewBelow = 90

	// estimateDelta is the minimum change, in pages, before a new
	// raw estimate replaces the stored one.
	estimateDelta = 20

	// ceilingExtension grows the page ceiling when the operator
	// chooses to continue past it.
	ceilingExtension = 1.3
)

// Options configures a capture run.
type Options struct {
	Book            string
	StartPage       int
	MaxPages        int // 0 means estimate from the progress indicator
	OutputDir       string
	AdvanceKey      string
	TurnDelay       time.Duration
	ScreenshotDelay time.Duration
	CheckInterval   int
	SafetyMargin    float64
	AutoEstimate    bool
	Countdown       time.Duration
}

func (o *Options) setDefaults() {
	if o.StartPage <= 0 {
		o.StartPage = 1
	}
	if o.AdvanceKey == "" {
		o.AdvanceKey = "right"
	}
	if o.TurnDelay <= 0 {
		o.TurnDelay = DefaultTurnDelay
	}
	if o.ScreenshotDelay <= 0 {
		o.ScreenshotDelay = DefaultScreenshotDelay
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.SafetyMargin < 1.0 {
		o.SafetyMargin = DefaultSafetyMargin
	}
}

// Session is the mutable state of one capture run. The controller owns
// it for the duration of Run; it is not safe for concurrent use.
type Session struct {
	CurrentPage int
	Captured    int

	// rawEstimate is the last accepted indicator-derived total,
	// before the safety margin. maxPages is the effective ceiling
	// (margin applied), zero when unbounded. userMax remembers
	// whether the caller pinned the ceiling, in which case
	// re-estimation never overrides it.
	rawEstimate   int
	maxPages      int
	userMax       int
	autoFinish    bool
	checkInterval int
}

func newSession(opts Options) *Session {
	return &Session{
		CurrentPage:   opts.StartPage,
		maxPages:      opts.MaxPages,
		userMax:       opts.MaxPages,
		checkInterval: opts.CheckInterval,
	}
}

// enterAutoFinish lifts the page ceiling, tightens the check interval
// and suppresses further reviews for the rest of the session.
func (s *Session) enterAutoFinish() {
	s.autoFinish = true
	s.maxPages = 0
	s.checkInterval = autoFinishInterval
}
