package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"booktext/internal/cancel"
	"booktext/internal/logger"
	"booktext/internal/subproc"
)

// ocrTimeout bounds the child OCR stage; a run that has made no exit
// in an hour is stuck, not slow.
const ocrTimeout = time.Hour

var runCmd = &cobra.Command{
	Use:   "run [book-name]",
	Short: "Capture a book and OCR it in one go",
	Long: `Run the full pipeline: capture every page from the viewer window,
then convert the captured images to text.

The OCR stage runs as a child process in its own process group, so a
single Ctrl-C tears down the whole pipeline cleanly, including any
recognition work in flight; partial text and a resume checkpoint are
preserved.`,
	Example: `  # Full pipeline with parallel OCR
  booktext run mybook --parallel

  # Cap the capture at 300 pages
  booktext run mybook --max-pages 300

  # Unattended: skip the readiness prompt
  booktext run mybook --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("window", "Kindle", "Substring of the viewer window title")
	runCmd.Flags().Int("max-pages", 0, "Hard page limit for the capture stage")
	runCmd.Flags().Bool("parallel", false, "Parallel OCR stage")
	runCmd.Flags().Int("workers", 0, "OCR worker pool size (0 = auto)")
	runCmd.Flags().Bool("no-progress", false, "Disable OCR progress output")
	runCmd.Flags().Bool("skip-capture", false, "Skip the capture stage and OCR existing screenshots")
	runCmd.Flags().Duration("timeout", ocrTimeout, "Hard limit for the OCR stage")
	runCmd.Flags().BoolP("yes", "y", false, "Skip the pre-capture readiness prompt")
}

// capturePages and launchOCR are swapped in tests to avoid driving a
// real viewer or spawning a real child.
var (
	capturePages = captureBook
	launchOCR    = func(ctx context.Context, argv []string, token *cancel.Token, timeout time.Duration, log zerolog.Logger) (int, bool, error) {
		return subproc.NewRunner(log).Run(ctx, argv, token, timeout)
	}
)

func runPipeline(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run")
	book := args[0]

	window, _ := cmd.Flags().GetString("window")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	parallel, _ := cmd.Flags().GetBool("parallel")
	workers, _ := cmd.Flags().GetInt("workers")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	skipCapture, _ := cmd.Flags().GetBool("skip-capture")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	yes, _ := cmd.Flags().GetBool("yes")

	// One token for the whole session: the capture loop, the OCR
	// child and the signal handler all share it.
	token := cancel.NewToken()
	cancel.NotifySignals(token, log, cancel.DefaultGracePeriod)

	// Stage 1: capture, in-process.
	if skipCapture {
		log.Info().Str("book", book).Msg("Capture stage skipped")
	} else {
		if !yes && !confirmReady(cmd.InOrStdin(), cmd.OutOrStdout()) {
			log.Info().Msg("Run cancelled by operator")
			return nil
		}
		if err := captureCmd.Flags().Set("window", window); err != nil {
			return err
		}
		if maxPages > 0 {
			if err := captureCmd.Flags().Set("max-pages", fmt.Sprint(maxPages)); err != nil {
				return err
			}
		}
		if err := capturePages(captureCmd, book, token); err != nil {
			return fmt.Errorf("capture stage: %w", err)
		}
	}

	if token.Cancelled() {
		log.Warn().Str("book", book).Msgf("Interrupted before OCR; resume later with: booktext ocr %s", book)
		return nil
	}

	// Stage 2: OCR, as a managed child so its whole process tree can
	// be torn down on interrupt or timeout.
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own binary: %w", err)
	}

	exitCode, aborted, err := launchOCR(context.Background(), ocrArgv(self, book, parallel, workers, noProgress), token, timeout, log)
	if err != nil {
		return fmt.Errorf("ocr stage: %w", err)
	}
	if aborted {
		log.Warn().Str("book", book).Msgf("OCR stage aborted; resume later with: booktext ocr %s --resume", book)
		return nil
	}
	if exitCode != 0 {
		return fmt.Errorf("ocr stage exited with code %d", exitCode)
	}

	log.Info().Str("book", book).Msg("Pipeline complete")
	return nil
}

// ocrArgv builds the child command line for the OCR stage.
func ocrArgv(self, book string, parallel bool, workers int, noProgress bool) []string {
	argv := []string{self, "ocr", book}
	if parallel {
		argv = append(argv, "--parallel")
	}
	if workers > 0 {
		argv = append(argv, "--workers", fmt.Sprint(workers))
	}
	if noProgress {
		argv = append(argv, "--no-progress")
	}
	return argv
}

// confirmReady walks the operator through the pre-capture checklist
// and reads one answer. Anything but yes declines.
func confirmReady(in io.Reader, out io.Writer) bool {
	fmt.Fprintln(out, "\nBefore capture starts, check:")
	fmt.Fprintln(out, "  1. The viewer application is running")
	fmt.Fprintln(out, "  2. The right book is open")
	fmt.Fprintln(out, "  3. The first page to capture is on screen")
	fmt.Fprint(out, "\nStart capturing? (y/N): ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
