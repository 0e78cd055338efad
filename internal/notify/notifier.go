package notify

import (
	"context"
	"strings"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
)

// Alert kinds.
const (
	KindOffline = "OFFLINE"
	KindRecover = "RECOVER"
)

// Message is one alert ready for delivery.
type Message struct {
	Recipients  []string
	Subject     string
	Body        string
	FromName    string
	FromAddress string

	// DeviceID and Kind are carried for transports that route or
	// structure alerts (MQTT topics, logs). Mail ignores them.
	DeviceID string
	Kind     string
}

// Notifier delivers a message and reports whether delivery succeeded.
type Notifier interface {
	Send(ctx context.Context, msg Message) bool
}

// Log writes alerts to the service log instead of delivering them.
type Log struct {
	logger *logging.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

// Send logs msg and always succeeds.
func (l *Log) Send(_ context.Context, msg Message) bool {
	l.logger.Info("alert",
		"kind", msg.Kind,
		"device", msg.DeviceID,
		"to", strings.Join(msg.Recipients, ","),
		"subject", msg.Subject,
	)
	return true
}

// Fanout sends every message through all notifiers.
type Fanout []Notifier

// Send delivers msg through each notifier in turn, even after a failure.
// It returns true only if there is at least one notifier and all of them
// succeeded.
func (f Fanout) Send(ctx context.Context, msg Message) bool {
	if len(f) == 0 {
		return false
	}
	ok := true
	for _, n := range f {
		if !n.Send(ctx, msg) {
			ok = false
		}
	}
	return ok
}
