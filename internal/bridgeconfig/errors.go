package bridgeconfig

import "errors"

var (
	// ErrNotFound is returned when a bridge has no configuration.
	ErrNotFound = errors.New("bridgeconfig: bridge not configured")

	// ErrExists is returned when creating a configuration that already exists.
	ErrExists = errors.New("bridgeconfig: bridge already configured")

	// ErrNoBridges is returned when the storage directory has no bridge state files.
	ErrNoBridges = errors.New("bridgeconfig: no homekit bridges found")

	// ErrAllConfigured is returned when every discovered bridge is already configured.
	ErrAllConfigured = errors.New("bridgeconfig: all bridges already configured")

	// ErrInvalidBridge is returned when a bridge is not available for configuration.
	ErrInvalidBridge = errors.New("bridgeconfig: invalid bridge")

	// ErrInvalidRoom is returned when a default room is not a known area name.
	ErrInvalidRoom = errors.New("bridgeconfig: invalid default room")

	// ErrUnsupportedVersion is returned for configurations written by a newer
	// or unknown schema version.
	ErrUnsupportedVersion = errors.New("bridgeconfig: unsupported configuration version")
)
