package registry

import "github.com/google/uuid"

// Area is a named physical location, such as "Kitchen".
type Area struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Device is a physical unit that may own entities and may sit in an area.
type Device struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name,omitempty" yaml:"name"`
	AreaID *string `json:"area_id,omitempty" yaml:"area_id"`
}

// Entity is an individually controllable object exposed by the platform.
type Entity struct {
	EntityID string  `json:"entity_id" yaml:"entity_id"`
	AreaID   *string `json:"area_id,omitempty" yaml:"area_id"`
	DeviceID *string `json:"device_id,omitempty" yaml:"device_id"`
}

// EntityLookup resolves an entity ID to its registry entry.
type EntityLookup interface {
	LookupEntity(entityID string) (Entity, bool)
}

// DeviceLookup resolves a device ID to its registry entry.
type DeviceLookup interface {
	LookupDevice(deviceID string) (Device, bool)
}

// AreaLookup resolves an area ID to its registry entry.
type AreaLookup interface {
	LookupArea(areaID string) (Area, bool)
}

// GenerateID creates a new identifier for registry rows imported without one.
func GenerateID() string {
	return uuid.New().String()
}

// stringPtr returns nil for empty strings so optional IDs stay absent.
func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
