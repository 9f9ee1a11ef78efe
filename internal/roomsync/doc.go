// Package roomsync keeps the rooms of a HomeKit bridge's accessories in step
// with the platform's area assignments.
//
// A Coordinator owns one bridge. Each pass loads the bridge's state file,
// resolves a room for every exposed entity from a fresh registry snapshot,
// and, only if something changed, backs the file up, writes it and asks the
// bridge to reload. Passes for one bridge are serialised; a second caller
// waits for the first to finish.
//
// Room resolution order for an entity:
//  1. the area assigned to the entity itself
//  2. the area of the entity's device
//  3. the bridge's default room, if any
//
// A Debouncer batches bursts of registry notifications into a single pass.
// The Supervisor wires coordinators and debouncers to configured bridges and
// to the MQTT notifications that announce registry changes.
package roomsync
