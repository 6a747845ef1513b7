package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
)

func newTestRunner(t *testing.T, opts RunnerOptions, engine *widthEngine) *Runner {
	t.Helper()
	if opts.Book == "" {
		opts.Book = "demo"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	return NewRunner(opts, engine, zerolog.Nop())
}

func TestRunnerEndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	writePages(t, inputDir, 5)

	r := newTestRunner(t, RunnerOptions{InputDir: inputDir, NoProgress: true}, &widthEngine{conf: 90})
	if err := r.Run(context.Background(), cancel.NewToken()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(r.opts.OutputDir, "demo.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	blocks := strings.Split(string(out), "\n\n")
	if len(blocks) != 5 {
		t.Fatalf("output has %d blocks, want 5", len(blocks))
	}
	for i, block := range blocks {
		if want := "page-" + string(rune('0'+i)); block != want {
			t.Errorf("block %d = %q, want %q", i, block, want)
		}
	}

	if _, err := os.Stat(filepath.Join(r.opts.TempDir, "demo_checkpoint.json")); !os.IsNotExist(err) {
		t.Error("checkpoint file still present after a successful run")
	}
}

func TestRunnerParallelEndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	writePages(t, inputDir, 8)

	r := newTestRunner(t, RunnerOptions{InputDir: inputDir, Parallel: true, Workers: 3, NoProgress: true}, &widthEngine{})
	if err := r.Run(context.Background(), cancel.NewToken()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(r.opts.OutputDir, "demo.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	blocks := strings.Split(string(out), "\n\n")
	if len(blocks) != 8 {
		t.Fatalf("output has %d blocks, want 8", len(blocks))
	}
	// Input order survives parallel completion order.
	for i, block := range blocks {
		if want := "page-" + string(rune('0'+i)); block != want {
			t.Errorf("block %d = %q, want %q", i, block, want)
		}
	}
}

func TestRunnerEmptyInputDir(t *testing.T) {
	r := newTestRunner(t, RunnerOptions{InputDir: t.TempDir()}, &widthEngine{})
	if err := r.Run(context.Background(), cancel.NewToken()); err == nil {
		t.Fatal("expected an error for an empty input directory")
	}
}

func TestRunnerResumeSkipsProcessedPages(t *testing.T) {
	inputDir := t.TempDir()
	files := writePages(t, inputDir, 5)

	tempDir := t.TempDir()
	checkpointPath := filepath.Join(tempDir, "demo_checkpoint.json")
	if err := SaveCheckpoint(checkpointPath, files[:2], 2); err != nil {
		t.Fatal(err)
	}

	engine := &widthEngine{}
	calls := 0
	engine.extract = func() { calls++ }

	r := newTestRunner(t, RunnerOptions{InputDir: inputDir, TempDir: tempDir, Resume: true, NoProgress: true}, engine)
	if err := r.Run(context.Background(), cancel.NewToken()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls != 3 {
		t.Errorf("engine ran %d times, want 3 (two pages already processed)", calls)
	}
	out, err := os.ReadFile(filepath.Join(r.opts.OutputDir, "demo.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if got := len(strings.Split(string(out), "\n\n")); got != 3 {
		t.Errorf("output has %d blocks, want 3", got)
	}
}

func TestRunnerInterruptWritesPartial(t *testing.T) {
	inputDir := t.TempDir()
	writePages(t, inputDir, 6)

	token := cancel.NewToken()
	engine := &widthEngine{}
	calls := 0
	engine.extract = func() {
		calls++
		if calls == 2 {
			token.Cancel("test interrupt")
		}
	}

	r := newTestRunner(t, RunnerOptions{InputDir: inputDir, NoProgress: true}, engine)
	err := r.Run(context.Background(), token)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Run = %v, want ErrInterrupted", err)
	}

	partial, err := os.ReadFile(filepath.Join(r.opts.OutputDir, "demo_partial.txt"))
	if err != nil {
		t.Fatalf("reading partial output: %v", err)
	}
	if got := len(strings.Split(string(partial), "\n\n")); got != 2 {
		t.Errorf("partial output has %d blocks, want 2", got)
	}
	if _, err := os.Stat(filepath.Join(r.opts.OutputDir, "demo.txt")); !os.IsNotExist(err) {
		t.Error("final output written despite interruption")
	}
}
