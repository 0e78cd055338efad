package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "solarwatch-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestTopics(t *testing.T) {
	topics := Topics{}
	assert.Equal(t, "solarwatch/telemetry/+", topics.AllTelemetry())
	assert.Equal(t, "solarwatch/alert/X1", topics.Alert("X1"))
	assert.Equal(t, "solarwatch/system/status", topics.SystemStatus())
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "pw"

	opts := buildClientOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://127.0.0.1:1883", opts.Servers[0].String())
	assert.Equal(t, "solarwatch-test", opts.ClientID)
	assert.Equal(t, "core", opts.Username)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "solarwatch/system/status", opts.WillTopic)

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	opts = buildClientOptions(cfg)
	assert.Equal(t, "ssl://127.0.0.1:8883", opts.Servers[0].String())
	require.NotNil(t, opts.TLSConfig)
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	require.NoError(t, json.Unmarshal([]byte(statusPayload("core", "offline", "graceful_shutdown")), &msg))
	assert.Equal(t, "offline", msg.Status)
	assert.Equal(t, "core", msg.ClientID)
	assert.Equal(t, "graceful_shutdown", msg.Reason)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestWrapHandler_LogsErrorsAndRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := &Client{logger: logging.NewWithCore(core, "test")}

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "solarwatch/telemetry/X1", payload: []byte("{}")})
	assert.Equal(t, "solarwatch/telemetry/X1={}", got)
	assert.Zero(t, logs.Len())

	c.wrapHandler(func(string, []byte) error {
		return errors.New("rejected")
	})(nil, fakeMessage{topic: "t"})
	assert.Equal(t, 1, logs.FilterMessage("mqtt handler returned error").Len())

	assert.NotPanics(t, func() {
		c.wrapHandler(func(string, []byte) error {
			panic("boom")
		})(nil, fakeMessage{topic: "t"})
	})
	assert.Equal(t, 1, logs.FilterMessage("mqtt handler panic recovered").Len())
}

func TestValidationBeforeConnection(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: map[string]subscription{}}

	assert.ErrorIs(t, c.Publish("", nil, 1, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("t", nil, 3, false), ErrInvalidQoS)
	assert.ErrorIs(t, c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed)
	assert.ErrorIs(t, c.Publish("t", []byte("x"), 1, false), ErrNotConnected)
	assert.ErrorIs(t, c.PublishJSON("t", map[string]string{"a": "b"}, false), ErrNotConnected)

	noop := func(string, []byte) error { return nil }
	assert.ErrorIs(t, c.Subscribe("", 1, noop), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("t", 3, noop), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("t", 1, nil), ErrSubscribeFailed)
	assert.ErrorIs(t, c.Subscribe("t", 1, noop), ErrNotConnected)
	assert.False(t, c.HasSubscription("t"))

	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
	assert.NoError(t, c.Close())
}
