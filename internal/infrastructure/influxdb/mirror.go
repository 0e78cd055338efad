package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

// Measurement is the InfluxDB measurement holding mirrored samples.
const Measurement = "solar_telemetry"

// SamplePoint converts an accepted sample into a point tagged with the
// device id and stamped with the sanitised device time. Numeric metrics
// become float fields; text metrics such as charge_state stay strings.
// Missing, null and nested metrics are left out.
func SamplePoint(deviceID string, s timeseries.Sample) *write.Point {
	fields := map[string]any{"seq": s.Seq}
	for _, k := range timeseries.MetricKeys {
		if v, ok := fieldValue(s.Metrics[k]); ok {
			fields[k] = v
		}
	}
	return write.NewPoint(Measurement,
		map[string]string{"device": deviceID},
		fields,
		time.Unix(s.TS, 0).UTC())
}

func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), true
	case float64, float32, int, int64, bool:
		return x, true
	case string:
		if x == "" {
			return nil, false
		}
		return x, true
	default:
		return nil, false
	}
}

// MirrorSample queues the sample for the next batch. It never blocks on
// the network and is a no-op on a nil or closed client.
func (c *Client) MirrorSample(deviceID string, s timeseries.Sample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SamplePoint(deviceID, s))
}
