package registry

import "errors"

var (
	// ErrAreaNotFound is returned when an area ID does not exist.
	ErrAreaNotFound = errors.New("registry: area not found")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrEntityNotFound is returned when an entity ID does not exist.
	ErrEntityNotFound = errors.New("registry: entity not found")

	// ErrInvalidArea is returned when an area has no ID or name.
	ErrInvalidArea = errors.New("registry: invalid area")

	// ErrInvalidDevice is returned when a device has no ID.
	ErrInvalidDevice = errors.New("registry: invalid device")

	// ErrInvalidEntity is returned when an entity has no entity ID.
	ErrInvalidEntity = errors.New("registry: invalid entity")
)
