package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/nerrad567/solarwatch-core/internal/telemetry"
)

// Payload is a decoded device submission.
type Payload struct {
	Version string
	Device  string
	Secret  string
	TS      int64
	Seq     int64

	// Metrics holds the measurement mapping with numbers as json.Number.
	Metrics map[string]any

	// RawMetrics is the metrics value exactly as sent, for the snapshot.
	RawMetrics json.RawMessage

	metricsOK bool
}

// DecodePayload parses body into a Payload. It only fails for an empty
// body or a body that is not a JSON object; field-level problems are left
// to the pipeline so they are reported in order.
func DecodePayload(body []byte) (*Payload, *Rejection) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, malformed(ReasonEmptyBody)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, malformed(ReasonInvalidJSON)
	}

	p := &Payload{
		Version: jsonString(fields["v"]),
		Device:  jsonString(fields["device"]),
		Secret:  jsonString(fields["secret"]),
		TS:      telemetry.LooseInt(fields["ts"]),
		Seq:     telemetry.LooseInt(fields["seq"]),
	}
	p.Metrics, p.RawMetrics, p.metricsOK = decodeMetrics(fields["metrics"])
	return p, nil
}

// jsonString returns raw as a Go string when it is a JSON string, else "".
func jsonString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeMetrics accepts a JSON object, or an empty array which some
// firmware emits for an empty map.
func decodeMetrics(raw json.RawMessage) (map[string]any, json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil, false
	}

	switch raw[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		m := map[string]any{}
		if err := dec.Decode(&m); err != nil {
			return nil, nil, false
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, nil, false
		}
		return m, compact.Bytes(), true
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 0 {
			return nil, nil, false
		}
		return map[string]any{}, json.RawMessage(`{}`), true
	default:
		return nil, nil, false
	}
}
