package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"booktext/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "booktext",
	Short: "booktext - capture paginated books and convert them to text",
	Long: `booktext automates reading a book out of a paginated viewer app:
it screenshots each page while turning pages for you, decides when the
book has ended from the viewer's own progress indicator, and then runs
the captured pages through OCR into a single text file.

Captured pages land in input/<book>/, extracted text in output/<book>.txt.
Interrupted OCR runs can be resumed with --resume.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("booktext executed")

		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
