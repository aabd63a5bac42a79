package scheduler

import (
	"sync"
	"time"

	"github.com/pagedkv/llamarunner/request"
)

// Intake is a condition-variable-protected FIFO between a producer
// goroutine publishing arriving requests and the runner goroutine that
// consumes them between scheduling iterations.
type Intake struct {
	mu            sync.Mutex
	cond          *sync.Cond
	pending       []*request.Request
	allSubmitted  bool
}

// NewIntake constructs an empty Intake.
func NewIntake() *Intake {
	in := &Intake{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Submit appends r to the pending queue and wakes any goroutine blocked
// in Wait. Non-blocking.
func (in *Intake) Submit(r *request.Request) {
	in.mu.Lock()
	in.pending = append(in.pending, r)
	in.mu.Unlock()
	in.cond.Broadcast()
}

// Drain atomically swaps out and returns every request submitted since
// the last Drain, in submission order.
func (in *Intake) Drain() []*request.Request {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.pending) == 0 {
		return nil
	}
	drained := in.pending
	in.pending = nil
	return drained
}

// Wait blocks until either a request is pending, all submissions are
// announced done, or timeout elapses, returning true if woken by one of
// the former rather than by the timeout.
func (in *Intake) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	in.mu.Lock()
	defer in.mu.Unlock()

	for len(in.pending) == 0 && !in.allSubmitted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, func() { in.cond.Broadcast() })
		in.cond.Wait()
		timer.Stop()
	}
	return true
}

// MarkAllSubmitted announces that no further Submit calls will occur and
// wakes any goroutine blocked in Wait.
func (in *Intake) MarkAllSubmitted() {
	in.mu.Lock()
	in.allSubmitted = true
	in.mu.Unlock()
	in.cond.Broadcast()
}

// IsDone reports whether MarkAllSubmitted has been called and no
// requests remain pending.
func (in *Intake) IsDone() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.allSubmitted && len(in.pending) == 0
}

// HasPending reports whether any request is waiting to be drained.
func (in *Intake) HasPending() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending) > 0
}

// NumPending returns the count of requests waiting to be drained.
func (in *Intake) NumPending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

// Reset clears all state, for reuse across test runs.
func (in *Intake) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.pending = nil
	in.allSubmitted = false
}
