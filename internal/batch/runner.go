package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
	"booktext/internal/imageutil"
	"booktext/internal/ocr"
)

// checkpointEvery is how many pages the sequential loop processes
// between checkpoint writes.
const checkpointEvery = 5

// RunnerOptions configures a book conversion run.
type RunnerOptions struct {
	Book       string
	InputDir   string
	OutputDir  string
	TempDir    string
	Resume     bool
	Parallel   bool
	Workers    int
	NoProgress bool
}

// Runner converts one book's page images into a text file. It owns the
// checkpoint lifecycle: load on resume, write periodically, delete on
// success, and leave in place on interrupt so the run can resume.
type Runner struct {
	opts   RunnerOptions
	engine ocr.Engine
	stats  *Stats
	log    zerolog.Logger
}

// NewRunner returns a runner over the given OCR engine.
func NewRunner(opts RunnerOptions, engine ocr.Engine, log zerolog.Logger) *Runner {
	return &Runner{
		opts:   opts,
		engine: engine,
		stats:  &Stats{},
		log:    log.With().Str("component", "batch").Str("book", opts.Book).Logger(),
	}
}

// Run executes the conversion. On cancellation it writes whatever text
// was extracted to <book>_partial.txt and returns ErrInterrupted; the
// checkpoint file survives for a later --resume.
func (r *Runner) Run(ctx context.Context, token *cancel.Token) error {
	start := time.Now()

	files, err := imageutil.ListImages(r.opts.InputDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no page images found in %s", r.opts.InputDir)
	}

	for _, dir := range []string{r.opts.OutputDir, r.opts.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	checkpointPath := filepath.Join(r.opts.TempDir, r.opts.Book+"_checkpoint.json")

	var processed []string
	startIndex := 0
	if r.opts.Resume {
		cp, err := LoadCheckpoint(checkpointPath)
		if err != nil {
			return err
		}
		if cp != nil {
			remaining, ok := cp.Apply(files)
			if !ok {
				r.log.Warn().Msg("Checkpoint references files missing from the input set, starting over")
			} else {
				processed = append(processed, cp.ProcessedFiles...)
				startIndex = cp.CurrentIndex
				files = remaining
				r.log.Info().Int("resume_index", startIndex).Msg("Resuming from checkpoint")
			}
		}
	}

	if len(files) == 0 {
		r.log.Info().Msg("All pages already processed")
		return nil
	}

	r.log.Info().
		Int("pages", len(files)).
		Bool("parallel", r.opts.Parallel).
		Msg("OCR batch starting")

	var tracker *Tracker
	if !r.opts.NoProgress {
		tracker = NewTracker(len(files), r.log)
	}

	var texts []string
	if r.opts.Parallel && len(files) > 1 {
		texts, processed = r.runParallel(ctx, token, files, processed, checkpointPath, tracker)
	} else {
		texts, processed = r.runSequential(ctx, token, files, processed, startIndex, checkpointPath, tracker)
	}

	if token.Cancelled() {
		r.log.Warn().Str("reason", token.Reason()).Msg("Batch interrupted, resume with --resume")
		if len(texts) > 0 {
			partial := filepath.Join(r.opts.OutputDir, r.opts.Book+"_partial.txt")
			if err := r.writeOutput(partial, texts); err != nil {
				r.log.Error().Err(err).Msg("Failed to save partial results")
			} else {
				r.log.Info().Str("file", partial).Int("pages", len(texts)).Msg("Partial results saved")
			}
		}
		r.stats.Log(r.log)
		return ErrInterrupted
	}

	if len(texts) == 0 {
		r.stats.Log(r.log)
		return fmt.Errorf("no text extracted from %d pages", len(files))
	}

	outputPath := filepath.Join(r.opts.OutputDir, r.opts.Book+".txt")
	if err := r.writeOutput(outputPath, texts); err != nil {
		return err
	}

	if err := RemoveCheckpoint(checkpointPath); err != nil {
		r.log.Warn().Err(err).Msg("Checkpoint cleanup failed")
	}

	if tracker != nil {
		tracker.Complete()
	}
	r.stats.Log(r.log)
	r.log.Info().
		Str("output", outputPath).
		Int("pages", len(texts)).
		Dur("elapsed", time.Since(start).Round(time.Second)).
		Msg("Conversion complete")
	return nil
}

func (r *Runner) runParallel(ctx context.Context, token *cancel.Token, files, processed []string, checkpointPath string, tracker *Tracker) ([]string, []string) {
	coord := NewCoordinator(r.engine, r.opts.Workers, r.stats, r.log)
	r.log.Info().Int("workers", coord.Workers()).Msg("Parallel mode")

	onProgress := func(completed int, name string, d time.Duration) {
		if tracker != nil {
			tracker.Update(completed, filepath.Base(name), d)
		}
	}

	results, errorCount := coord.Process(ctx, files, onProgress, token)
	if errorCount > 0 {
		r.log.Warn().Int("failed_pages", errorCount).Msg("Some pages failed OCR")
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Text)
		processed = append(processed, files[res.Index])
	}

	if token.Cancelled() && len(results) > 0 {
		if err := SaveCheckpoint(checkpointPath, processed, len(processed)); err != nil {
			r.log.Warn().Err(err).Msg("Checkpoint write failed")
		}
	}
	return texts, processed
}

func (r *Runner) runSequential(ctx context.Context, token *cancel.Token, files, processed []string, startIndex int, checkpointPath string, tracker *Tracker) ([]string, []string) {
	retry := RetryPolicy{Stats: r.stats, Log: r.log}

	var texts []string
	for i, path := range files {
		if token.Cancelled() {
			break
		}

		pageNum := startIndex + i + 1
		itemStart := time.Now()

		var text string
		var confidence float64
		err := retry.Do(token, "page OCR", func() error {
			img, err := imageutil.LoadImage(path)
			if err != nil {
				return err
			}
			text, err = r.engine.ExtractText(ctx, img)
			if err != nil {
				return err
			}
			confidence = r.engine.Confidence(ctx, img)
			return nil
		})
		if err != nil {
			r.log.Error().Err(err).Str("file", filepath.Base(path)).Int("page", pageNum).Msg("Page failed, skipping")
			continue
		}

		texts = append(texts, text)
		processed = append(processed, path)
		r.log.Debug().
			Int("page", pageNum).
			Str("file", filepath.Base(path)).
			Float64("confidence", confidence).
			Msg("Page processed")

		if tracker != nil {
			tracker.Update(i+1, filepath.Base(path), time.Since(itemStart))
		}

		if pageNum%checkpointEvery == 0 {
			if err := SaveCheckpoint(checkpointPath, processed, pageNum); err != nil {
				r.log.Warn().Err(err).Msg("Checkpoint write failed")
			}
		}
	}
	return texts, processed
}

// writeOutput joins page texts with blank lines and writes the result.
func (r *Runner) writeOutput(path string, texts []string) error {
	combined := strings.Join(texts, "\n\n")
	if err := os.WriteFile(path, []byte(combined), 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	r.log.Info().Str("file", path).Int("bytes", len(combined)).Msg("Output written")
	return nil
}
