package roomsync

import "github.com/nerrad567/homekit-room-sync/internal/registry"

// ResolveRoom returns the room an entity belongs in, or defaultRoom when no
// area applies. A nil result means "leave the accessory's room alone".
//
// When the entity carries its own area ID that ID decides, even if the area
// no longer exists; the device is only consulted for entities with no area
// of their own.
//
// Parameters:
//   - entityID: the accessory's entity_id
//   - entities, devices, areas: registry lookups, usually one *registry.Snapshot
//   - defaultRoom: fallback room; nil disables it
//
// Returns:
//   - *string: the area name, defaultRoom, or nil
func ResolveRoom(
	entityID string,
	entities registry.EntityLookup,
	devices registry.DeviceLookup,
	areas registry.AreaLookup,
	defaultRoom *string,
) *string {
	entity, ok := entities.LookupEntity(entityID)
	if !ok {
		return defaultRoom
	}

	var areaID string
	switch {
	case entity.AreaID != nil && *entity.AreaID != "":
		areaID = *entity.AreaID
	case entity.DeviceID != nil && *entity.DeviceID != "":
		if device, ok := devices.LookupDevice(*entity.DeviceID); ok && device.AreaID != nil {
			areaID = *device.AreaID
		}
	}

	if areaID != "" {
		if area, ok := areas.LookupArea(areaID); ok {
			name := area.Name
			return &name
		}
	}
	return defaultRoom
}
