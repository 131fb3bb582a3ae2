package session

import (
	"sync"
	"time"
)

// resettable is a small arm/cancel wrapper around time.Timer. Keeping
// the arm and cancel operations explicit — instead of closures capturing
// a mutable timer handle — makes cancellation and testing deterministic.
type resettable struct {
	mu sync.Mutex
	t  *time.Timer
}

// Arm schedules fn after d, cancelling any previously armed callback.
func (r *resettable) Arm(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.t = time.AfterFunc(d, fn)
}

// Cancel stops the pending callback, if any.
func (r *resettable) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
}
