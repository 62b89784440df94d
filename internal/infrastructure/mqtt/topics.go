package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the hub's MQTT tree.
const (
	// TopicPrefix is the root of every hub topic.
	TopicPrefix = "graylogic"

	// TopicPrefixBridge is the base for MQTT device bridge topics.
	// Scheme: graylogic/bridge/mqtt/{state|command}/{device_id}/{cluster}
	TopicPrefixBridge = "graylogic/bridge/mqtt"

	// TopicPrefixCore is the base for topics the hub publishes.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the hub's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.Presence("phone-alex")
//	// Returns: "graylogic/presence/phone-alex"
type Topics struct{}

// =============================================================================
// Inbound feeds
// =============================================================================

// Presence returns the topic a host reports home/away on.
//
// Example: graylogic/presence/phone-alex
func (Topics) Presence(hostID string) string {
	return fmt.Sprintf("%s/presence/%s", TopicPrefix, hostID)
}

// Location returns the topic a tracked device reports its position on.
//
// Example: graylogic/location/phone-alex
func (Topics) Location(deviceID string) string {
	return fmt.Sprintf("%s/location/%s", TopicPrefix, deviceID)
}

// BridgeState returns the topic a bridged device reports one cluster's
// state on.
//
// Example: graylogic/bridge/mqtt/state/plug-kitchen/OnOff
func (Topics) BridgeState(deviceID, cluster string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, deviceID, cluster)
}

// BridgeCommand returns the topic commands for one cluster of a bridged
// device are published on.
//
// Example: graylogic/bridge/mqtt/command/plug-kitchen/OnOff
func (Topics) BridgeCommand(deviceID, cluster string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, deviceID, cluster)
}

// =============================================================================
// Outbound topics
// =============================================================================

// Notify returns the notification topic.
//
// Example: graylogic/notify
func (Topics) Notify() string {
	return TopicPrefix + "/notify"
}

// CoreEvent returns the topic for hub events.
//
// Example: graylogic/core/event/host_arrival
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the hub's online/offline status topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllPresence returns a pattern matching every host's presence report.
//
// Pattern: graylogic/presence/+
func (Topics) AllPresence() string {
	return TopicPrefix + "/presence/+"
}

// AllLocations returns a pattern matching every location report.
//
// Pattern: graylogic/location/+
func (Topics) AllLocations() string {
	return TopicPrefix + "/location/+"
}

// AllBridgeStates returns a pattern matching every bridged device state.
//
// Pattern: graylogic/bridge/mqtt/state/+/+
func (Topics) AllBridgeStates() string {
	return TopicPrefixBridge + "/state/+/+"
}

// AllTopics returns a pattern matching all hub topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// Segment returns the i-th slash-separated segment of topic, counting
// from the end when i is negative. ok is false when out of range.
func Segment(topic string, i int) (seg string, ok bool) {
	parts := strings.Split(topic, "/")
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return "", false
	}
	return parts[i], true
}
