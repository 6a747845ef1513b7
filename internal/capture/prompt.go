package capture

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"booktext/internal/position"
)

// Decision is the operator's answer to a progress review.
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionStop
	DecisionAutoFinish
)

// Progress is what a review renders: where the loop is and what the
// indicator said, if anything.
type Progress struct {
	Page      int
	Signal    position.Signal
	HasSignal bool
}

// Prompter blocks for an operator decision at a review point.
type Prompter interface {
	Review(p Progress) Decision
}

const (
	// reviewTimeout bounds the wait for operator input; no answer
	// means continue.
	reviewTimeout = 10 * time.Second

	barWidth = 30
)

// TerminalPrompter renders progress to Out and reads a single input
// line from In with a bounded wait. Defaults wire to the terminal.
type TerminalPrompter struct {
	In      io.Reader
	Out     io.Writer
	Timeout time.Duration

	lines chan string
}

// NewTerminalPrompter returns a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{In: in, Out: out, Timeout: reviewTimeout}
}

func (t *TerminalPrompter) Review(p Progress) Decision {
	fmt.Fprintln(t.Out)
	fmt.Fprintln(t.Out, strings.Repeat("=", 50))
	fmt.Fprintf(t.Out, "Page %d\n", p.Page)

	if p.HasSignal {
		fmt.Fprintf(t.Out, "Position %d/%d (%d%%)\n", p.Signal.Current, p.Signal.Total, p.Signal.Percentage)
		fmt.Fprintf(t.Out, "|%s| %d%%\n", RenderBar(p.Signal.Percentage, barWidth), p.Signal.Percentage)

		if p.Signal.Percentage > 0 && p.Signal.Percentage < 100 {
			remaining := p.Page * (100 - p.Signal.Percentage) / p.Signal.Percentage
			fmt.Fprintf(t.Out, "Estimated remaining: ~%d pages\n", remaining)
		}
	} else {
		fmt.Fprintln(t.Out, "Position indicator not readable")
	}

	fmt.Fprintln(t.Out, "\n[Enter] continue  [a] auto-finish to 100%  [q] stop")
	fmt.Fprintf(t.Out, "Continuing automatically in %s...\n", t.Timeout)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = reviewTimeout
	}

	select {
	case line := <-t.readLine():
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "q":
			return DecisionStop
		case "a":
			return DecisionAutoFinish
		default:
			return DecisionContinue
		}
	case <-time.After(timeout):
		fmt.Fprintln(t.Out, "No input, continuing")
		return DecisionContinue
	}
}

// readLine starts (once) a goroutine that feeds input lines into a
// channel. A read that outlives one review is consumed by the next, so
// repeated reviews share the single reader.
func (t *TerminalPrompter) readLine() <-chan string {
	if t.lines == nil {
		t.lines = make(chan string)
		go func() {
			scanner := bufio.NewScanner(t.In)
			for scanner.Scan() {
				t.lines <- scanner.Text()
			}
			close(t.lines)
		}()
	}
	return t.lines
}

// RenderBar draws a fixed-width progress bar for the given percentage.
func RenderBar(percentage, width int) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	filled := width * percentage / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
