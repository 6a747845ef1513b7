package batch

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// recentWindow bounds how many per-item durations feed the speed
// estimate, so the ETA tracks current throughput rather than the whole
// run's history.
const recentWindow = 10

// Tracker reports batch progress and an ETA blended from three
// estimators (overall rate, recent per-item speed, items per second);
// the median of the available estimates is used, which tolerates one
// of them being skewed early in a run.
type Tracker struct {
	total   int
	current int
	start   time.Time
	recent  []time.Duration
	log     zerolog.Logger
}

// NewTracker returns a tracker over total items.
func NewTracker(total int, log zerolog.Logger) *Tracker {
	return &Tracker{total: total, start: time.Now(), log: log}
}

// Update records that item current (1-based) finished, taking d. A
// zero d means the caller did not time the item. Progress is logged
// every tenth item and at completion.
func (t *Tracker) Update(current int, name string, d time.Duration) {
	t.current = current
	if d > 0 {
		t.recent = append(t.recent, d)
		if len(t.recent) > recentWindow {
			t.recent = t.recent[len(t.recent)-recentWindow:]
		}
	}

	if current%10 != 0 && current != t.total {
		return
	}

	percentage := 0.0
	if t.total > 0 {
		percentage = float64(current) / float64(t.total) * 100
	}

	evt := t.log.Info().
		Float64("percentage", percentage).
		Int("current", current).
		Int("total", t.total).
		Str("item", name).
		Dur("elapsed", time.Since(t.start).Round(time.Second))
	if eta, ok := t.eta(); ok {
		evt = evt.Dur("eta", eta.Round(time.Second))
	}
	evt.Msg("Batch progress")
}

// eta is the median of the applicable estimators.
func (t *Tracker) eta() (time.Duration, bool) {
	elapsed := time.Since(t.start)
	remaining := t.total - t.current

	var estimates []time.Duration

	if t.total > 0 && t.current > 0 {
		pct := float64(t.current) / float64(t.total)
		if pct > 0.05 {
			totalEstimate := time.Duration(float64(elapsed) / pct)
			estimates = append(estimates, totalEstimate-elapsed)
		}
	}

	if len(t.recent) > 0 {
		var sum time.Duration
		for _, d := range t.recent {
			sum += d
		}
		perItem := sum / time.Duration(len(t.recent))
		estimates = append(estimates, perItem*time.Duration(remaining))
	}

	if t.current > 1 && elapsed > 0 {
		rate := float64(t.current) / elapsed.Seconds()
		estimates = append(estimates, time.Duration(float64(remaining)/rate*float64(time.Second)))
	}

	if len(estimates) == 0 {
		return 0, false
	}
	sort.Slice(estimates, func(i, j int) bool { return estimates[i] < estimates[j] })
	return estimates[len(estimates)/2], true
}

// Complete logs the final throughput summary.
func (t *Tracker) Complete() {
	elapsed := time.Since(t.start)
	evt := t.log.Info().
		Int("items", t.current).
		Dur("elapsed", elapsed.Round(time.Second))
	if t.current > 0 {
		evt = evt.Dur("per_item", (elapsed / time.Duration(t.current)).Round(time.Millisecond))
	}
	evt.Msg("Batch complete")
}
