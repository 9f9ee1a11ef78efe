// Package bridgeconfig stores which HomeKit bridges are kept in sync and
// with what default room.
//
// Each configured bridge is one row keyed by bridge name. Flow implements the
// operator-facing setup steps: list bridges that have a state file but no
// configuration yet, validate a choice, and change the default room later.
package bridgeconfig
