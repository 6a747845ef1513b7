package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"booktext/internal/batch"
	"booktext/internal/cancel"
	"booktext/internal/config"
	"booktext/internal/logger"
	"booktext/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [book-name]",
	Short: "Convert a book's captured page images to a text file",
	Long: `OCR every page image in <input-dir>/<book-name> and write the
extracted text, one page per paragraph block, to <output-dir>/<book-name>.txt.

Two OCR engines are available:
  tesseract - local recognition (default); tries several page
              segmentation modes per page and keeps the best result
  vision    - Google Cloud Vision document text detection; needs
              GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS

Progress is checkpointed every few pages. If the run is interrupted,
the partial text is saved to <book-name>_partial.txt and a later run
with --resume picks up where it stopped.`,
	Example: `  # Sequential OCR with the local engine
  booktext ocr mybook

  # Parallel OCR with four workers
  booktext ocr mybook --parallel --workers 4

  # Resume an interrupted run
  booktext ocr mybook --resume

  # Use Google Cloud Vision instead of Tesseract
  booktext ocr mybook --engine vision`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().Bool("resume", false, "Resume from the last checkpoint")
	ocrCmd.Flags().Bool("parallel", false, "Process pages on a worker pool")
	ocrCmd.Flags().Int("workers", 0, "Worker pool size (0 = auto)")
	ocrCmd.Flags().String("engine", "", "OCR engine: tesseract or vision (default from config)")
	ocrCmd.Flags().String("input", "", "Input directory (default: <input-dir>/<book-name>)")
	ocrCmd.Flags().StringP("output", "o", "", "Output directory (default from config)")
	ocrCmd.Flags().String("lang", "", "Tesseract language spec, e.g. jpn+eng (default from config)")
	ocrCmd.Flags().Bool("no-progress", false, "Disable progress reporting")
}

func runBatchOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	book := args[0]
	resume, _ := cmd.Flags().GetBool("resume")
	parallel, _ := cmd.Flags().GetBool("parallel")
	workers, _ := cmd.Flags().GetInt("workers")
	engineName, _ := cmd.Flags().GetString("engine")
	inputDir, _ := cmd.Flags().GetString("input")
	outputDir, _ := cmd.Flags().GetString("output")
	lang, _ := cmd.Flags().GetString("lang")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	if engineName == "" {
		engineName = cfg.OCREngine
	}
	if inputDir == "" {
		inputDir = filepath.Join(cfg.InputDir, book)
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if lang != "" {
		cfg.OCRLanguages = lang
	}
	if workers == 0 {
		workers = cfg.Workers
	}

	ctx := context.Background()
	token := cancel.NewToken()
	cancel.NotifySignals(token, log, cancel.DefaultGracePeriod)

	engine, cleanup, err := newEngine(ctx, engineName, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := batch.NewRunner(batch.RunnerOptions{
		Book:       book,
		InputDir:   inputDir,
		OutputDir:  outputDir,
		TempDir:    cfg.TempDir,
		Resume:     resume,
		Parallel:   parallel,
		Workers:    workers,
		NoProgress: noProgress,
	}, engine, log)

	if err := runner.Run(ctx, token); err != nil {
		if errors.Is(err, batch.ErrInterrupted) {
			log.Warn().Msg("Run interrupted; restart with --resume to continue")
		}
		return err
	}
	return nil
}

// newEngine builds the selected OCR engine. The returned cleanup is
// always safe to call.
func newEngine(ctx context.Context, name string, cfg *config.Config, log zerolog.Logger) (ocr.Engine, func(), error) {
	switch name {
	case "tesseract":
		return ocr.NewTesseractEngine(cfg.OCRLanguages, nil, log), func() {}, nil
	case "vision":
		engine, err := ocr.NewVisionEngine(ctx)
		if err != nil {
			return nil, func() {}, err
		}
		return engine, func() { _ = engine.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown OCR engine %q", name)
	}
}
