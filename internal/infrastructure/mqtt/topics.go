package mqtt

import "fmt"

// TopicPrefix is the root of every gateway topic.
const TopicPrefix = "graylogic/gateway"

// Topics builds gateway topic names.
//
//	topic := mqtt.Topics{}.Event("plugin.registered")
//	// graylogic/gateway/event/plugin.registered
type Topics struct{}

// Status is the retained online/offline topic of one gateway client.
//
// Example: graylogic/gateway/status/graylogic-gateway
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, clientID)
}

// Event is the topic for one gateway event type.
//
// Example: graylogic/gateway/event/directory.rebuilt
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// Announce is the retained announcement topic of one plugin.
//
// Example: graylogic/gateway/announce/emulator
func (Topics) Announce(pluginName string) string {
	return fmt.Sprintf("%s/announce/%s", TopicPrefix, pluginName)
}

// AllEvents matches every gateway event.
//
// Pattern: graylogic/gateway/event/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// AllAnnouncements matches every plugin announcement.
//
// Pattern: graylogic/gateway/announce/+
func (Topics) AllAnnouncements() string {
	return TopicPrefix + "/announce/+"
}
