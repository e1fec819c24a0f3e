// Package schedule provides cancellable delayed callbacks for the onboarding
// sub-workflows. Every callback runs on the scheduler's single event loop, and
// a stopped Timer never runs its callback, even if the underlying clock has
// already fired.
package schedule

import (
	"sync/atomic"
	"time"
)

// Scheduler schedules fn to run once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) *Timer
}

// Timer is a handle to a scheduled callback.
type Timer struct {
	stopped atomic.Bool
	fired   atomic.Bool
	cancel  func()
}

// Stop cancels the callback. It reports whether the call prevented the
// callback from running. Stop on a nil Timer is a no-op.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	if t.stopped.Swap(true) {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	return !t.fired.Load()
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	return t != nil && t.stopped.Load()
}

func (t *Timer) fire(fn func()) {
	if t.stopped.Load() {
		return
	}
	if t.fired.Swap(true) {
		return
	}
	fn()
}
