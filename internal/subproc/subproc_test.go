package subproc

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"booktext/internal/cancel"
)

func newTestRunner() *Runner {
	r := NewRunner(zerolog.Nop())
	r.poll = 20 * time.Millisecond
	r.grace = 200 * time.Millisecond
	return r
}

func TestRunReturnsExitCode(t *testing.T) {
	r := newTestRunner()

	code, aborted, err := r.Run(context.Background(), []string{"sh", "-c", "exit 7"}, cancel.NewToken(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if aborted {
		t.Error("aborted = true for a normal exit")
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

func TestRunSuccess(t *testing.T) {
	r := newTestRunner()

	code, aborted, err := r.Run(context.Background(), []string{"true"}, cancel.NewToken(), 0)
	if err != nil || aborted || code != 0 {
		t.Errorf("Run = (%d, %v, %v), want (0, false, nil)", code, aborted, err)
	}
}

func TestRunCancellationAborts(t *testing.T) {
	r := newTestRunner()
	token := cancel.NewToken()

	go func() {
		time.Sleep(50 * time.Millisecond)
		token.Cancel("test")
	}()

	start := time.Now()
	_, aborted, err := r.Run(context.Background(), []string{"sleep", "10"}, token, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !aborted {
		t.Error("aborted = false after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %s to abort", elapsed)
	}
}

func TestRunTimeoutAborts(t *testing.T) {
	r := newTestRunner()

	start := time.Now()
	_, aborted, err := r.Run(context.Background(), []string{"sleep", "10"}, cancel.NewToken(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !aborted {
		t.Error("aborted = false after timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %s to abort", elapsed)
	}
}

func TestRunTerminatesProcessGroup(t *testing.T) {
	r := newTestRunner()
	token := cancel.NewToken()

	go func() {
		time.Sleep(100 * time.Millisecond)
		token.Cancel("test")
	}()

	// The shell spawns its own child; group termination must take
	// both down without hanging on the pipe drain.
	_, aborted, err := r.Run(context.Background(), []string{"sh", "-c", "sleep 10 & wait"}, token, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !aborted {
		t.Error("aborted = false after cancellation")
	}
}

func TestTerminateDoesNotHangOnStuckChild(t *testing.T) {
	r := newTestRunner()
	r.grace = 50 * time.Millisecond

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = cmd.Wait()

	// A wait channel that never fires stands in for a child that
	// survives SIGKILL (unreapable, stuck in the kernel).
	stuck := make(chan error)
	done := make(chan struct{})
	go func() {
		r.terminate(cmd, stuck)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminate blocked on a child that never reports exit")
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := newTestRunner()
	if _, _, err := r.Run(context.Background(), nil, cancel.NewToken(), 0); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestRunLaunchFailure(t *testing.T) {
	r := newTestRunner()
	if _, _, err := r.Run(context.Background(), []string{"/nonexistent/binary"}, cancel.NewToken(), 0); err == nil {
		t.Fatal("expected a launch error")
	}
}
