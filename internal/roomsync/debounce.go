package roomsync

import (
	"sync"
	"time"
)

// Debouncer runs fn once delay has passed without another Trigger.
// Every Trigger replaces any pending run. A run that has already started is
// never interrupted.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	stopped    bool
}

// NewDebouncer creates a Debouncer for fn.
//
// Parameters:
//   - delay: quiet period after the last Trigger before fn runs
//   - fn: called on its own goroutine, at most once per quiet period
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn, cancelling a run that is scheduled but not started.
// It does nothing after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.cancelLocked()

	gen := d.generation
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A Trigger or Stop that raced with the timer firing wins.
		if d.stopped || d.generation != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.fn()
	})
}

// Cancel drops a scheduled run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()
}

// Stop cancels any scheduled run and ignores every later Trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cancelLocked()
	d.mu.Unlock()
}

// Pending reports whether a run is scheduled and has not yet started.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}
