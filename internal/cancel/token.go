// Package cancel provides the shared stop flag used to shut the
// capture loop, OCR workers and child processes down cooperatively.
package cancel

import "sync"

// Token is a one-shot cancellation flag shared by every concurrent
// execution context of a run. Once set it stays set; Reset exists for
// tests only. Readers poll Cancelled at unit-of-work boundaries or
// select on Done.
type Token struct {
	mu     sync.Mutex
	done   chan struct{}
	set    bool
	reason string
}

// NewToken returns an unset token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it more than once is safe; only the
// first reason is kept.
func (t *Token) Cancel(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set {
		return
	}
	t.set = true
	t.reason = reason
	close(t.done)
}

// Cancelled reports whether a stop has been requested.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set
}

// Reason returns the reason passed to the first Cancel call, or "".
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Done returns a channel closed when cancellation is requested.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Reset clears the token so a test can reuse it. Production code must
// never call this; the set-once invariant is what lets workers cache
// the result of a poll.
func (t *Token) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set {
		t.done = make(chan struct{})
		t.set = false
		t.reason = ""
	}
}
