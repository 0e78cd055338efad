package influxdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

func TestSamplePoint(t *testing.T) {
	s := timeseries.Sample{
		TS:  1700000000,
		Seq: 42,
		Metrics: map[string]any{
			"batt_v":       json.Number("12.5"),
			"soc":          json.Number("80"),
			"charge_state": "mppt",
			"pv_w":         nil,
			"load_w":       map[string]any{"nested": true},
			"temp_c":       "",
			"unknown_key":  json.Number("1"),
		},
	}

	p := SamplePoint("X1", s)
	assert.Equal(t, Measurement, p.Name())
	assert.True(t, p.Time().Equal(time.Unix(1700000000, 0)))

	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "device", p.TagList()[0].Key)
	assert.Equal(t, "X1", p.TagList()[0].Value)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]any{
		"seq":          int64(42),
		"batt_v":       12.5,
		"soc":          80.0,
		"charge_state": "mppt",
	}, fields)
}

func TestConnect_Disabled(t *testing.T) {
	c, err := Connect(config.InfluxDBConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, c)
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	assert.False(t, c.IsConnected())
	assert.NotPanics(t, func() {
		c.MirrorSample("X1", timeseries.Sample{TS: 1})
	})
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
}
