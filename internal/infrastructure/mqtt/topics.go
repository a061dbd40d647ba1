package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "kasa"

// Topics builds the bridge's MQTT topic hierarchy:
//
//	<prefix>/discovery/<deviceId>   device announces itself (JSON descriptor)
//	<prefix>/state/<deviceId>       device reports power/light state
//	<prefix>/command/<deviceId>     bridge sends a power or light command
//	<prefix>/get/<deviceId>         bridge requests a fresh state report
//	<prefix>/bridge/status          retained online/offline status of the bridge
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root segment.
func (t Topics) Prefix() string { return t.prefix }

func (t Topics) Discovery(deviceID string) string { return t.prefix + "/discovery/" + deviceID }
func (t Topics) State(deviceID string) string     { return t.prefix + "/state/" + deviceID }
func (t Topics) Command(deviceID string) string   { return t.prefix + "/command/" + deviceID }
func (t Topics) Get(deviceID string) string       { return t.prefix + "/get/" + deviceID }

// AllDiscovery matches every discovery announcement.
func (t Topics) AllDiscovery() string { return t.prefix + "/discovery/+" }

// AllStates matches every device state report.
func (t Topics) AllStates() string { return t.prefix + "/state/+" }

// BridgeStatus is the retained status topic for this bridge.
func (t Topics) BridgeStatus() string { return t.prefix + "/bridge/status" }

// DeviceID extracts the trailing device id from a discovery, state,
// command or get topic. ok is false for topics outside the prefix.
func (t Topics) DeviceID(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/")
	if !found {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	switch parts[0] {
	case "discovery", "state", "command", "get":
		return parts[1], true
	default:
		return "", false
	}
}
