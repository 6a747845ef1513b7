// Package subproc runs a child command as the root of its own process
// group so the whole descendant tree can be terminated as a unit, with
// cooperative cancellation and a bounded timeout.
package subproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
)

const (
	// pollInterval is how often the supervisor re-checks for natural
	// exit, cancellation and timeout.
	pollInterval = 500 * time.Millisecond

	// termGrace is how long the process group gets to exit after
	// SIGTERM before SIGKILL.
	termGrace = 3 * time.Second
)

// Runner launches and supervises one child command. Output streams are
// drained continuously into the logger so a chatty child never blocks
// on a full pipe.
type Runner struct {
	log zerolog.Logger

	// grace, poll are overridable in tests.
	grace time.Duration
	poll  time.Duration
}

// NewRunner returns a supervisor logging child output through log.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{
		log:   log.With().Str("component", "subproc").Logger(),
		grace: termGrace,
		poll:  pollInterval,
	}
}

// Run executes argv and waits for exit, cancellation or timeout
// (timeout <= 0 means none). The return distinguishes the outcomes:
// aborted is true, and the exit code meaningless, when the child was
// deliberately terminated by cancellation or timeout; otherwise the
// child ran to completion and exitCode is its status. err reports
// launch failures only.
func (r *Runner) Run(ctx context.Context, argv []string, token *cancel.Token, timeout time.Duration) (exitCode int, aborted bool, err error) {
	if len(argv) == 0 {
		return 0, false, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, false, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, false, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, false, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	r.log.Info().Int("pid", pid).Strs("argv", argv).Msg("Child process started")

	go r.drain(stdout, pid, "stdout")
	go r.drain(stderr, pid, "stderr")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case waitErr := <-waitCh:
			code := exitStatus(cmd, waitErr)
			r.log.Info().Int("pid", pid).Int("exit_code", code).Msg("Child process exited")
			return code, false, nil
		case <-token.Done():
			r.log.Warn().Int("pid", pid).Str("reason", token.Reason()).Msg("Cancellation requested, terminating child")
			r.terminate(cmd, waitCh)
			return 0, true, nil
		case <-deadline:
			r.log.Warn().Int("pid", pid).Dur("timeout", timeout).Msg("Child process timed out, terminating")
			r.terminate(cmd, waitCh)
			return 0, true, nil
		case <-ctx.Done():
			r.terminate(cmd, waitCh)
			return 0, true, nil
		case <-ticker.C:
			// Re-check all conditions.
		}
	}
}

// terminate signals the whole process group: SIGTERM first, SIGKILL
// for whatever survives the grace period. If the group cannot be
// addressed at all, the direct child is killed as a fallback.
func (r *Runner) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	pid := cmd.Process.Pid

	// Negative pid addresses the group.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		r.log.Debug().Err(err).Int("pid", pid).Msg("SIGTERM delivery failed")
	}

	select {
	case <-waitCh:
		r.log.Info().Int("pid", pid).Msg("Child process terminated gracefully")
		return
	case <-time.After(r.grace):
	}

	r.log.Warn().Int("pid", pid).Msg("Grace period expired, killing process group")
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		r.log.Debug().Err(err).Int("pid", pid).Msg("SIGKILL delivery failed, killing child directly")
		if err := cmd.Process.Kill(); err != nil {
			r.log.Error().Err(err).Int("pid", pid).Msg("Direct kill failed")
		}
	}

	// A SIGKILLed child reaps almost immediately; if it still has not
	// after another grace period, nothing more can be done from here.
	select {
	case <-waitCh:
	case <-time.After(r.grace):
		r.log.Error().Int("pid", pid).Msg("Child process did not exit after SIGKILL, abandoning it")
	}
}

// drain forwards one child stream into the log line by line.
func (r *Runner) drain(stream io.Reader, pid int, name string) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.log.Info().Int("pid", pid).Str("stream", name).Msg(scanner.Text())
	}
}

func exitStatus(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return cmd.ProcessState.ExitCode()
}
