package timeseries

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ISOLayout renders timestamps as "2023-11-15T07:13:20+09:00". Unlike
// time.RFC3339 it never abbreviates a zero offset to "Z".
const ISOLayout = "2006-01-02T15:04:05-07:00"

// MetricKeys are the measurement columns in partition order.
var MetricKeys = []string{
	"batt_v", "batt_a", "soc",
	"pv_v", "pv_a", "pv_w",
	"load_w", "temp_c", "charge_state",
}

// Fields is the fixed partition header.
var Fields = append([]string{"ts", "iso", "seq"}, MetricKeys...)

// Sample is one accepted reading.
type Sample struct {
	TS      int64
	Seq     int64
	Metrics map[string]any
}

// ISO formats ts in loc.
func ISO(ts int64, loc *time.Location) string {
	return time.Unix(ts, 0).In(loc).Format(ISOLayout)
}

// PartitionKey returns the record store key of the partition holding ts.
func PartitionKey(deviceID string, ts int64, loc *time.Location) string {
	return MonthKey(deviceID, time.Unix(ts, 0).In(loc).Format("2006-01"))
}

// MonthKey returns the partition key for a "YYYY-MM" month.
func MonthKey(deviceID, ym string) string {
	return fmt.Sprintf("data/%s/log/%s.csv", deviceID, ym)
}

// Row renders s in Fields order. Metrics that are missing, null or
// nested serialise as empty strings.
func Row(s Sample, loc *time.Location) []string {
	row := make([]string, 0, len(Fields))
	row = append(row,
		strconv.FormatInt(s.TS, 10),
		ISO(s.TS, loc),
		strconv.FormatInt(s.Seq, 10),
	)
	for _, k := range MetricKeys {
		row = append(row, FormatValue(s.Metrics[k]))
	}
	return row
}

// FormatValue renders one metric value for CSV. Numbers decoded with
// json.Decoder.UseNumber keep their original text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case json.Number:
		return x.String()
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}
