package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"booktext/internal/cancel"
	"booktext/internal/capture"
	"booktext/internal/config"
	"booktext/internal/logger"
	"booktext/internal/ocr"
	"booktext/internal/position"
)

var captureCmd = &cobra.Command{
	Use:   "capture [book-name]",
	Short: "Screenshot a book page by page from the viewer window",
	Long: `Drive the viewer window through a whole book: screenshot the current
page, send a page-turn key, wait for the page to settle, repeat.

The total page count is estimated from the viewer's progress indicator
(with a safety margin), and the loop stops on its own when the
indicator reaches 100% or an end-of-book marker (index, afterword,
bibliography) appears. Near the end you are asked interactively whether
to continue, stop, or let the run finish automatically.

Screenshots are written as page_001.png, page_002.png, ... so the OCR
stage processes them in reading order.`,
	Example: `  # Capture with automatic length estimation
  booktext capture mybook

  # Capture at most 350 pages from a window titled "Kindle"
  booktext capture mybook --max-pages 350 --window Kindle

  # Slower page turns for a sluggish viewer
  booktext capture mybook --turn-delay 3s`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("window", "Kindle", "Substring of the viewer window title")
	captureCmd.Flags().Int("start-page", 1, "Page number the viewer is currently showing")
	captureCmd.Flags().Int("max-pages", 0, "Hard page limit (0 = estimate automatically)")
	captureCmd.Flags().StringP("output", "o", "", "Output directory (default: <input-dir>/<book-name>)")
	captureCmd.Flags().Duration("turn-delay", 0, "Wait after each page turn (default from config)")
	captureCmd.Flags().String("key", "", "Page-turn key: right, space or pagedown (default from config)")
	captureCmd.Flags().Int("check-interval", 0, "Pages between progress checks (default from config)")
	captureCmd.Flags().Bool("no-estimate", false, "Disable automatic total-page estimation")
}

func runCapture(cmd *cobra.Command, args []string) error {
	token := cancel.NewToken()
	cancel.NotifySignals(token, logger.WithComponent("capture"), cancel.DefaultGracePeriod)
	return captureBook(cmd, args[0], token)
}

// captureBook runs the capture stage against an externally owned
// token, so a surrounding pipeline can share one stop flag across
// stages.
func captureBook(cmd *cobra.Command, book string, token *cancel.Token) error {
	log := logger.WithComponent("capture")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	window, _ := cmd.Flags().GetString("window")
	startPage, _ := cmd.Flags().GetInt("start-page")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	outputDir, _ := cmd.Flags().GetString("output")
	turnDelay, _ := cmd.Flags().GetDuration("turn-delay")
	advanceKey, _ := cmd.Flags().GetString("key")
	checkInterval, _ := cmd.Flags().GetInt("check-interval")
	noEstimate, _ := cmd.Flags().GetBool("no-estimate")

	if outputDir == "" {
		outputDir = filepath.Join(cfg.InputDir, book)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	if turnDelay <= 0 {
		turnDelay = time.Duration(cfg.PageTurnDelay * float64(time.Second))
	}
	if checkInterval <= 0 {
		checkInterval = cfg.CheckInterval
	}
	if advanceKey == "" {
		advanceKey = cfg.PageTurnKey
	}

	// The progress indicator is read with Tesseract regardless of the
	// configured text engine; it is a tiny digit strip, not a page.
	stripEngine := ocr.NewTesseractEngine(cfg.OCRLanguages, nil, log)
	extractor := position.NewExtractor(stripEngine, log)

	controller := capture.NewController(capture.Options{
		Book:            book,
		StartPage:       startPage,
		MaxPages:        maxPages,
		OutputDir:       outputDir,
		AdvanceKey:      advanceKey,
		TurnDelay:       turnDelay,
		ScreenshotDelay: time.Duration(cfg.ScreenshotDelay * float64(time.Second)),
		CheckInterval:   checkInterval,
		SafetyMargin:    cfg.SafetyMargin,
		AutoEstimate:    !noEstimate,
		Countdown:       capture.DefaultCountdown,
	}, capture.NewX11Screen(window, log), extractor, capture.NewTerminalPrompter(os.Stdin, os.Stdout), log)

	count, err := controller.Run(context.Background(), token)
	if err != nil {
		return err
	}

	log.Info().
		Str("book", book).
		Int("pages", count).
		Str("output", outputDir).
		Msg("Capture run finished")
	return nil
}
