package roomsync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 10)
	d := NewDebouncer(30*time.Millisecond, func() {
		runs.Add(1)
		done <- struct{}{}
	})
	defer d.Stop()

	for range 5 {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	if !d.Pending() {
		t.Error("Pending() = false right after Trigger")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced function never ran")
	}
	time.Sleep(60 * time.Millisecond)

	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("Pending() = true after run")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })
	defer d.Stop()

	d.Trigger()
	d.Cancel()
	if d.Pending() {
		t.Error("Pending() = true after Cancel")
	}
	time.Sleep(60 * time.Millisecond)

	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after Cancel", got)
	}
}

func TestDebouncer_TriggerAfterCancel(t *testing.T) {
	done := make(chan struct{})
	d := NewDebouncer(10*time.Millisecond, func() { close(done) })
	defer d.Stop()

	d.Trigger()
	d.Cancel()
	d.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Trigger after Cancel never ran")
	}
}

func TestDebouncer_StopIgnoresLaterTriggers(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(50 * time.Millisecond)

	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after Stop", got)
	}
	if d.Pending() {
		t.Error("Pending() = true after Stop")
	}
}
