package roomsync

import "errors"

var (
	// ErrBridgeNotLoaded is returned when an operation names a bridge the
	// supervisor is not currently running.
	ErrBridgeNotLoaded = errors.New("roomsync: bridge not loaded")

	// ErrPanic is reported in a Result when a pass panicked.
	ErrPanic = errors.New("roomsync: sync pass panicked")

	// ErrSupervisorStopped is returned by operations on a stopped supervisor.
	ErrSupervisorStopped = errors.New("roomsync: supervisor stopped")
)
