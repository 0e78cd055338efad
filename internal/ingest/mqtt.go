package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// mqttIngestTimeout bounds one MQTT-delivered ingest.
const mqttIngestTimeout = 15 * time.Second

// MQTTHandler returns a message handler for telemetry topics of the form
// "<prefix><device>". The device in the topic must match the payload's;
// rejections are logged and returned to the transport, which logs them.
//
// The signature matches mqtt.MessageHandler.
func (s *Service) MQTTHandler(ctx context.Context, topicPrefix string) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		topicDevice := strings.TrimPrefix(topic, topicPrefix)
		if topicDevice == topic || topicDevice == "" || strings.Contains(topicDevice, "/") {
			return fmt.Errorf("ingest: unexpected telemetry topic %q", topic)
		}

		p, rej := DecodePayload(payload)
		if rej == nil && p.Device != topicDevice {
			s.logger.Warn("mqtt device does not match topic", "topic", topic, "device", p.Device)
			s.metrics.IngestResult(ReasonUnknownDevice)
			return forbidden(ReasonUnknownDevice)
		}

		reqCtx, cancel := context.WithTimeout(ctx, mqttIngestTimeout)
		defer cancel()

		_, err := s.Ingest(reqCtx, Request{Body: payload, RemoteAddr: "mqtt:" + topic})
		return err
	}
}
