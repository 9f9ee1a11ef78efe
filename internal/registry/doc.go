// Package registry provides the platform's entity, device and area registries.
//
// Entities may be assigned to an area directly and may be owned by a device;
// devices may themselves be assigned to an area. Sync passes never talk to the
// tables directly: they take a Snapshot at the start of the pass and query it
// through the EntityLookup, DeviceLookup and AreaLookup interfaces. Lookups
// report absence with a boolean, never with an error, so a dangling reference
// simply resolves as "not found".
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use. A Snapshot is immutable after
// construction and may be shared between goroutines.
package registry
