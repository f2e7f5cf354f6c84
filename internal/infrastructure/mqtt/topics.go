package mqtt

import "strings"

// Status payloads published on the bridge status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics builds the bridge's MQTT topics from the configured prefixes.
//
//	topics := mqtt.NewTopics("govee", "homeassistant")
//	topics.Attribute("AA:BB:CC", "brightness")
//	// Returns: "govee/AA:BB:CC/brightness"
type Topics struct {
	prefix    string
	discovery string
}

// NewTopics returns a topic builder. discovery may be empty, in which case
// Discovery returns "".
func NewTopics(prefix, discovery string) Topics {
	return Topics{
		prefix:    strings.TrimSuffix(prefix, "/"),
		discovery: strings.TrimSuffix(discovery, "/"),
	}
}

// Prefix returns the bridge topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns the bridge availability topic.
//
// Example: govee/bridge/status
func (t Topics) Status() string {
	return t.prefix + "/bridge/status"
}

// SetSubscribe returns the wildcard pattern for inbound commands.
//
// Pattern: govee/+/set
func (t Topics) SetSubscribe() string {
	return t.prefix + "/+/set"
}

// Set returns the command topic for one device.
func (t Topics) Set(deviceID string) string {
	return t.prefix + "/" + deviceID + "/set"
}

// State returns the aggregate state topic for one device.
func (t Topics) State(deviceID string) string {
	return t.prefix + "/" + deviceID
}

// Attribute returns the per-attribute topic for one device.
func (t Topics) Attribute(deviceID, attribute string) string {
	return t.prefix + "/" + deviceID + "/" + attribute
}

// HasDiscovery reports whether a discovery prefix is configured.
func (t Topics) HasDiscovery() bool {
	return t.discovery != ""
}

// Discovery returns the Home Assistant light config topic for a device.
// Colons are stripped from the device id so the object id is a valid
// discovery segment.
//
// Example: homeassistant/light/govee_AABBCC/config
func (t Topics) Discovery(deviceID string) string {
	if t.discovery == "" {
		return ""
	}
	return t.discovery + "/light/govee_" + ObjectID(deviceID) + "/config"
}

// DeviceIDFromSetTopic extracts the device id from an inbound command topic.
// Device ids contain colons but never slashes.
func (t Topics) DeviceIDFromSetTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ObjectID strips colons from a vendor device id.
func ObjectID(deviceID string) string {
	return strings.ReplaceAll(deviceID, ":", "")
}
