// Package util holds small concurrency helpers.
package util

import (
	"sync"
	"time"
)

// OneShot runs a callback once after a fixed delay. Arming an already pending
// OneShot does nothing, so at most one callback is ever outstanding.
//
// Example usage:
//
//	timer := NewOneShot(1500*time.Millisecond, func() { goIdle() })
//	defer timer.Stop()
//
//	if silent {
//	    timer.Arm() // starts the countdown only if none is running
//	} else {
//	    timer.Disarm()
//	}
type OneShot struct {
	duration time.Duration
	fn       func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	pending    bool
	stopped    bool
}

// NewOneShot creates a disarmed OneShot.
func NewOneShot(duration time.Duration, fn func()) *OneShot {
	return &OneShot{
		duration: duration,
		fn:       fn,
	}
}

// Arm starts the countdown. It reports whether a new countdown was started;
// false means one was already pending or the OneShot is stopped.
func (o *OneShot) Arm() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped || o.pending {
		return false
	}

	o.generation++
	gen := o.generation
	o.pending = true
	o.timer = time.AfterFunc(o.duration, func() { o.fire(gen) })

	return true
}

// Disarm cancels a pending countdown and reports whether one was cancelled.
func (o *OneShot) Disarm() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.disarmLocked()
}

// Pending reports whether a countdown is running.
func (o *OneShot) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.pending
}

// Stop disarms the OneShot and prevents further arming.
// It's safe to call Stop multiple times.
func (o *OneShot) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.disarmLocked()
	o.stopped = true
}

func (o *OneShot) disarmLocked() bool {
	if !o.pending {
		return false
	}

	// bumping the generation invalidates a callback that already left the timer
	o.generation++
	o.pending = false
	o.timer.Stop()

	return true
}

func (o *OneShot) fire(gen uint64) {
	o.mu.Lock()
	if gen != o.generation || !o.pending {
		o.mu.Unlock()

		return
	}
	o.pending = false
	o.mu.Unlock()

	o.fn()
}
