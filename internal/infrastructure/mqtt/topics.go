package mqtt

import "fmt"

// Topic prefixes.
const (
	TopicPrefix          = "solarwatch"
	TopicPrefixTelemetry = TopicPrefix + "/telemetry/"
	TopicPrefixAlert     = TopicPrefix + "/alert/"
)

// Topics builds SolarWatch topic names. Devices publish samples to
// TopicPrefixTelemetry followed by their id.
//
//	mqtt.Topics{}.Alert("X1") // "solarwatch/alert/X1"
type Topics struct{}

// AllTelemetry matches every device's telemetry topic.
func (Topics) AllTelemetry() string {
	return TopicPrefixTelemetry + "+"
}

// Alert is where offline/recover alerts for a device are published.
func (Topics) Alert(deviceID string) string {
	return TopicPrefixAlert + deviceID
}

// SystemStatus carries the retained online/offline status of the core.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}
