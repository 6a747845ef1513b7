package batch

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
	"booktext/internal/imageutil"
	"booktext/internal/ocr"
)

// defaultMaxWorkers caps OCR parallelism; recognition is CPU-bound and
// more workers than this show no gain on typical page images.
const defaultMaxWorkers = 4

// pollInterval is how often the collector re-checks the cancellation
// flag while waiting on in-flight work.
const pollInterval = 200 * time.Millisecond

// ProgressFunc is invoked as each page completes, in completion order.
type ProgressFunc func(completed int, name string, d time.Duration)

// Coordinator fans page images out to a fixed-size OCR worker pool.
// All jobs are submitted eagerly; results are collected as they land
// and only sorted by original index before return, so completion order
// never leaks into the output.
type Coordinator struct {
	engine  ocr.Engine
	workers int
	stats   *Stats
	log     zerolog.Logger
}

// NewCoordinator returns a coordinator with the given pool size;
// workers <= 0 selects min(4, GOMAXPROCS).
func NewCoordinator(engine ocr.Engine, workers int, stats *Stats, log zerolog.Logger) *Coordinator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > defaultMaxWorkers {
			workers = defaultMaxWorkers
		}
	}
	return &Coordinator{
		engine:  engine,
		workers: workers,
		stats:   stats,
		log:     log.With().Str("component", "coordinator").Logger(),
	}
}

// Workers reports the pool size in use.
func (c *Coordinator) Workers() int { return c.workers }

type job struct {
	index int
	path  string
}

type outcome struct {
	result ocr.Result
	path   string
	err    error
}

// Process OCRs files through the pool and returns results for the
// pages that succeeded, sorted by input index, plus the failure count.
// On cancellation it stops handing out work and returns whatever had
// already completed; partial results are a valid outcome, not an
// error. A single page's failure is counted and dropped without
// aborting the batch.
func (c *Coordinator) Process(ctx context.Context, files []string, onProgress ProgressFunc, token *cancel.Token) ([]ocr.Result, int) {
	if len(files) == 0 {
		return nil, 0
	}

	jobs := make(chan job, len(files))
	outcomes := make(chan outcome, len(files))

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range jobs {
				if token.Cancelled() {
					return
				}
				outcomes <- c.runJob(ctx, j)
			}
		}(i)
	}

	for i, f := range files {
		jobs <- job{index: i, path: f}
	}
	close(jobs)

	// Collector. Waits with a short poll so a cancellation request is
	// observed within pollInterval even when every worker is deep in a
	// recognition call.
	var (
		results   []ocr.Result
		errors    int
		completed int
	)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

collect:
	for completed < len(files) {
		select {
		case out := <-outcomes:
			completed++
			if out.err != nil {
				errors++
				if c.stats != nil {
					c.stats.RecordError(out.err)
				}
				c.log.Warn().Err(out.err).Str("file", out.path).Msg("Page OCR failed, dropped from batch")
				continue
			}
			results = append(results, out.result)
			if onProgress != nil {
				onProgress(completed, out.path, out.result.ProcessingTime)
			}
		case <-token.Done():
			c.log.Warn().
				Int("completed", completed).
				Int("total", len(files)).
				Msg("Cancellation requested, returning partial results")
			break collect
		case <-ticker.C:
			// Nothing landed this interval; loop to re-check the flag.
		}
	}

	// Workers drain remaining jobs quickly once the token is set; the
	// pool is not waited on after cancellation.
	if !token.Cancelled() {
		wg.Wait()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, errors
}

func (c *Coordinator) runJob(ctx context.Context, j job) outcome {
	start := time.Now()

	img, err := imageutil.LoadImage(j.path)
	if err != nil {
		return outcome{path: j.path, err: err}
	}

	text, err := c.engine.ExtractText(ctx, img)
	if err != nil {
		return outcome{path: j.path, err: err}
	}

	return outcome{
		path: j.path,
		result: ocr.Result{
			Index:          j.index,
			Text:           text,
			Confidence:     c.engine.Confidence(ctx, img),
			ProcessingTime: time.Since(start),
		},
	}
}
