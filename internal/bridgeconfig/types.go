package bridgeconfig

import (
	"fmt"
	"time"
)

// CurrentVersion is the configuration schema version written by this build.
const CurrentVersion = 1

// titlePrefix is prepended to the bridge name to form a configuration title.
const titlePrefix = "HomeKit Bridge: "

// BridgeConfig is the stored configuration of one synced bridge.
type BridgeConfig struct {
	Name        string    `json:"bridge_name" yaml:"bridge_name"`
	Title       string    `json:"title" yaml:"title"`
	DefaultRoom *string   `json:"default_room,omitempty" yaml:"default_room"`
	Version     int       `json:"version" yaml:"version"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Title returns the display title for a bridge.
func Title(bridge string) string {
	return titlePrefix + bridge
}

// CheckVersion reports whether the configuration can be used as is.
// Version 1 is the only schema so far; there is nothing to migrate.
func (c *BridgeConfig) CheckVersion() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: %d (bridge %s)", ErrUnsupportedVersion, c.Version, c.Name)
	}
	return nil
}

// DefaultRoomOrEmpty returns the default room, or "" when none is set.
func (c *BridgeConfig) DefaultRoomOrEmpty() string {
	if c.DefaultRoom == nil {
		return ""
	}
	return *c.DefaultRoom
}

// optionalRoom maps the "no default room" choice ("") to nil.
func optionalRoom(room string) *string {
	if room == "" {
		return nil
	}
	return &room
}
