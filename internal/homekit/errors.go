package homekit

import "errors"

var (
	// ErrNotFound is returned when a bridge state file does not exist.
	ErrNotFound = errors.New("homekit: state file not found")

	// ErrMalformed is returned when a state file is not valid JSON, its top
	// level is not an object, or it has no "data" object.
	ErrMalformed = errors.New("homekit: malformed state file")

	// ErrIO is returned for file system failures other than a missing file.
	ErrIO = errors.New("homekit: i/o error")

	// ErrSerialization is returned when a document cannot be encoded for writing.
	ErrSerialization = errors.New("homekit: serialization failed")

	// ErrAccessoryIndex is returned by SetRoom for an index outside the document.
	ErrAccessoryIndex = errors.New("homekit: accessory index out of range")

	// ErrReload is returned when the bridge could not be reloaded.
	ErrReload = errors.New("homekit: reload failed")

	// ErrReloadTimeout is returned when a reload response does not arrive in time.
	ErrReloadTimeout = errors.New("homekit: reload timed out")
)
