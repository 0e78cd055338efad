package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/mqtt"
)

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Alert is the JSON document published for each MQTT alert.
type Alert struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Device   string `json:"device"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	SentAtTS int64  `json:"sent_at_ts"`
}

// MQTT publishes alerts to solarwatch/alert/<device>.
type MQTT struct {
	pub    Publisher
	logger *logging.Logger
	now    func() time.Time
}

// NewMQTT creates an MQTT notifier.
func NewMQTT(pub Publisher, logger *logging.Logger) *MQTT {
	if logger == nil {
		logger = logging.Default()
	}
	return &MQTT{pub: pub, logger: logger.With("component", "notify.mqtt"), now: time.Now}
}

// Send publishes msg (not retained). Recipients are not part of the
// published document.
func (n *MQTT) Send(_ context.Context, msg Message) bool {
	alert := Alert{
		ID:       uuid.NewString(),
		Kind:     msg.Kind,
		Device:   msg.DeviceID,
		Subject:  msg.Subject,
		Body:     msg.Body,
		SentAtTS: n.now().Unix(),
	}
	if err := n.pub.PublishJSON(mqtt.Topics{}.Alert(msg.DeviceID), alert, false); err != nil {
		n.logger.Warn("alert publish failed", "device", msg.DeviceID, "kind", msg.Kind, "error", err)
		return false
	}
	return true
}
