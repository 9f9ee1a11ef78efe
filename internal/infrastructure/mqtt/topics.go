package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	// TopicPrefixRoomSync is the base for topics owned by the sync service.
	TopicPrefixRoomSync = "roomsync"

	// TopicPrefixHomeKit is the base for topics answered by the HomeKit bridge.
	TopicPrefixHomeKit = "homekit"
)

// Registry event types published by the platform.
const (
	EventEntityRegistryUpdated = "entity_registry_updated"
	EventAreaRegistryUpdated   = "area_registry_updated"
	EventBridgeConfigUpdated   = "bridge_config_updated"
)

// Topics provides builders for room sync MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SyncResult("main")
//	// Returns: "roomsync/sync/main/result"
type Topics struct{}

// RegistryEvent returns the topic for a platform registry event.
//
// Example: roomsync/event/entity_registry_updated
func (Topics) RegistryEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixRoomSync, eventType)
}

// EntityRegistryUpdated returns the topic signalling entity registry changes.
func (t Topics) EntityRegistryUpdated() string {
	return t.RegistryEvent(EventEntityRegistryUpdated)
}

// AreaRegistryUpdated returns the topic signalling area registry changes.
func (t Topics) AreaRegistryUpdated() string {
	return t.RegistryEvent(EventAreaRegistryUpdated)
}

// BridgeConfigUpdated returns the topic signalling that bridge configuration
// (the set of configured bridges or a default room) has changed.
func (t Topics) BridgeConfigUpdated() string {
	return t.RegistryEvent(EventBridgeConfigUpdated)
}

// SyncRequest returns the topic used to ask for an immediate sync of one bridge.
//
// Example: roomsync/sync/main/request
func (Topics) SyncRequest(bridge string) string {
	return fmt.Sprintf("%s/sync/%s/request", TopicPrefixRoomSync, bridge)
}

// SyncResult returns the retained topic carrying a bridge's last sync outcome.
//
// Example: roomsync/sync/main/result
func (Topics) SyncResult(bridge string) string {
	return fmt.Sprintf("%s/sync/%s/result", TopicPrefixRoomSync, bridge)
}

// ReloadRequest returns the topic a reload request with the given ID is sent on.
//
// Example: homekit/request/reload/6f1c...
func (Topics) ReloadRequest(requestID string) string {
	return fmt.Sprintf("%s/request/reload/%s", TopicPrefixHomeKit, requestID)
}

// ReloadResponse returns the topic the bridge answers a reload request on.
//
// Example: homekit/response/reload/6f1c...
func (Topics) ReloadResponse(requestID string) string {
	return fmt.Sprintf("%s/response/reload/%s", TopicPrefixHomeKit, requestID)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: roomsync/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixRoomSync + "/system/status"
}

// AllRegistryEvents returns a pattern matching every registry event.
//
// Pattern: roomsync/event/+
func (Topics) AllRegistryEvents() string {
	return TopicPrefixRoomSync + "/event/+"
}

// AllSyncRequests returns a pattern matching sync requests for any bridge.
//
// Pattern: roomsync/sync/+/request
func (Topics) AllSyncRequests() string {
	return TopicPrefixRoomSync + "/sync/+/request"
}

// AllSyncResults returns a pattern matching every bridge's sync result.
//
// Pattern: roomsync/sync/+/result
func (Topics) AllSyncResults() string {
	return TopicPrefixRoomSync + "/sync/+/result"
}

// ParseSyncTopic extracts the bridge name from a roomsync/sync/<bridge>/<kind>
// topic. It reports false for any other topic.
func ParseSyncTopic(topic string) (bridge, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixRoomSync+"/sync/")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
