//go:build integration

package influxdb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

// Needs InfluxDB 2.x at 127.0.0.1:8086 with the org, bucket and token below.
func integrationConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "solarwatch-dev-token",
		Org:           "solarwatch",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestIntegration_MirrorSample(t *testing.T) {
	c, err := Connect(integrationConfig())
	require.NoError(t, err)

	var writeErr error
	c.SetOnError(func(err error) { writeErr = err })

	require.NoError(t, c.HealthCheck(context.Background()))
	c.MirrorSample("X1", timeseries.Sample{TS: 1700000000, Seq: 1, Metrics: map[string]any{"soc": json.Number("50")}})
	require.NoError(t, c.Close(), "Close flushes buffered points")
	assert.NoError(t, writeErr)
}
