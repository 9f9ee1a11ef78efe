package registry

import "sort"

// Snapshot is a point-in-time, read-only copy of the three registries.
// It implements EntityLookup, DeviceLookup and AreaLookup.
type Snapshot struct {
	areas    map[string]Area
	devices  map[string]Device
	entities map[string]Entity
}

// NewSnapshot builds a Snapshot from registry rows. Later duplicates win.
func NewSnapshot(areas []Area, devices []Device, entities []Entity) *Snapshot {
	s := &Snapshot{
		areas:    make(map[string]Area, len(areas)),
		devices:  make(map[string]Device, len(devices)),
		entities: make(map[string]Entity, len(entities)),
	}
	for _, a := range areas {
		s.areas[a.ID] = a
	}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	for _, e := range entities {
		s.entities[e.EntityID] = e
	}
	return s
}

// LookupEntity implements EntityLookup.
func (s *Snapshot) LookupEntity(entityID string) (Entity, bool) {
	e, ok := s.entities[entityID]
	return e, ok
}

// LookupDevice implements DeviceLookup.
func (s *Snapshot) LookupDevice(deviceID string) (Device, bool) {
	d, ok := s.devices[deviceID]
	return d, ok
}

// LookupArea implements AreaLookup.
func (s *Snapshot) LookupArea(areaID string) (Area, bool) {
	a, ok := s.areas[areaID]
	return a, ok
}

// AreaNames returns every area name, sorted.
func (s *Snapshot) AreaNames() []string {
	names := make([]string, 0, len(s.areas))
	for _, a := range s.areas {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}
