package cmd

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"booktext/internal/cancel"
)

func swapPipelineStages(t *testing.T) {
	t.Helper()
	origCapture, origLaunch := capturePages, launchOCR
	t.Cleanup(func() {
		capturePages = origCapture
		launchOCR = origLaunch
	})
}

func TestPipelineSkipsOCRAfterInterruptedCapture(t *testing.T) {
	swapPipelineStages(t)

	capturePages = func(_ *cobra.Command, _ string, token *cancel.Token) error {
		// An operator interrupt arrives mid-capture; the loop unwinds
		// cleanly and returns no error.
		token.Cancel("signal: interrupt")
		return nil
	}
	launched := false
	launchOCR = func(_ context.Context, _ []string, _ *cancel.Token, _ time.Duration, _ zerolog.Logger) (int, bool, error) {
		launched = true
		return 0, false, nil
	}

	if err := runCmd.Flags().Set("yes", "true"); err != nil {
		t.Fatal(err)
	}
	if err := runPipeline(runCmd, []string{"mybook"}); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if launched {
		t.Error("OCR child launched after the capture stage was interrupted")
	}
}

func TestPipelineSharesOneToken(t *testing.T) {
	swapPipelineStages(t)

	var captureToken, ocrToken *cancel.Token
	capturePages = func(_ *cobra.Command, _ string, token *cancel.Token) error {
		captureToken = token
		return nil
	}
	launchOCR = func(_ context.Context, _ []string, token *cancel.Token, _ time.Duration, _ zerolog.Logger) (int, bool, error) {
		ocrToken = token
		return 0, false, nil
	}

	if err := runCmd.Flags().Set("yes", "true"); err != nil {
		t.Fatal(err)
	}
	if err := runPipeline(runCmd, []string{"mybook"}); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if captureToken == nil {
		t.Fatal("capture stage never received a token")
	}
	if captureToken != ocrToken {
		t.Error("capture and OCR stages received different tokens")
	}
}

func TestOCRArgv(t *testing.T) {
	tests := []struct {
		name       string
		parallel   bool
		workers    int
		noProgress bool
		want       []string
	}{
		{"sequential", false, 0, false, []string{"/bin/booktext", "ocr", "mybook"}},
		{"parallel with workers", true, 3, false, []string{"/bin/booktext", "ocr", "mybook", "--parallel", "--workers", "3"}},
		{"no progress forwarded", false, 0, true, []string{"/bin/booktext", "ocr", "mybook", "--no-progress"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ocrArgv("/bin/booktext", "mybook", tt.parallel, tt.workers, tt.noProgress)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ocrArgv = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfirmReady(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "Yes\n", true},
		{"no", "n\n", false},
		{"empty defaults to no", "\n", false},
		{"closed input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			if got := confirmReady(strings.NewReader(tt.input), &out); got != tt.want {
				t.Errorf("confirmReady(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Start capturing?") {
				t.Error("prompt text missing from output")
			}
		})
	}
}
