package mqtt

import "fmt"

// Topic prefixes per the Ember Core MQTT contract.
//
// The hosting automation layer publishes entity state to
// embercore/state/{entity_id} (retained) and consumes actuation commands
// from embercore/command/{domain}/{device_id}.
const (
	// TopicPrefixRoot is the base for all Ember Core topics.
	TopicPrefixRoot = "embercore"

	// TopicPrefixCore is the base for topics published by the core itself.
	TopicPrefixCore = "embercore/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "embercore/system"
)

// Topics provides builders for Ember Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EntityState("sensor.hall_temperature")
//	// Returns: "embercore/state/sensor.hall_temperature"
type Topics struct{}

// EntityState returns the topic carrying state events for one entity.
//
// The hosting layer publishes these retained, so a fresh subscriber
// immediately receives the last known value (cold-start seeding).
//
// Example: embercore/state/sensor.hall_temperature
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefixRoot, entityID)
}

// Command returns the topic for actuation commands to a device.
//
// Example: embercore/command/climate/living_room
func (Topics) Command(domain, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixRoot, domain, deviceID)
}

// CoreStatus returns the topic for controller status broadcasts.
//
// Published retained so dashboards see the current status on subscribe.
//
// Example: embercore/core/status
func (Topics) CoreStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixCore)
}

// SystemStatus returns the system online/offline status topic.
// Used for the Last Will and Testament and graceful shutdown messages.
//
// Example: embercore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEntityStates returns a wildcard matching every entity state topic.
//
// Example: embercore/state/+
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefixRoot)
}
