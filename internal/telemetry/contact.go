package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

// Contact describes one accepted sample for the contact record.
type Contact struct {
	ServerTS int64  // last_seen_ts
	DeviceTS int64  // last_seen_device_ts, after clock sanity
	Seq      int64  // last_seq
	RemoteIP string // last_rx_ip
}

// ContactKey returns the record key of a device's contact record.
func ContactKey(deviceID string) string {
	return fmt.Sprintf("data/%s/state.json", deviceID)
}

// ContactStore updates contact records.
type ContactStore struct {
	records recordstore.Records
}

// NewContactStore creates a ContactStore.
func NewContactStore(records recordstore.Records) *ContactStore {
	return &ContactStore{records: records}
}

// Touch records c in the device's contact record. The contact fields are
// overwritten; offline, last_alert_offline_ts and last_alert_recover_ts are
// initialised only when absent; every other key is preserved. A corrupt
// existing record is replaced rather than blocking ingestion.
func (s *ContactStore) Touch(ctx context.Context, deviceID string, c Contact) error {
	return s.records.ReadModifyWrite(ctx, ContactKey(deviceID), func(current []byte) ([]byte, error) {
		state := map[string]any{}
		if len(current) > 0 {
			dec := json.NewDecoder(bytes.NewReader(current))
			dec.UseNumber()
			if err := dec.Decode(&state); err != nil || state == nil {
				state = map[string]any{}
			}
		}

		state["last_seen_ts"] = c.ServerTS
		state["last_seen_device_ts"] = c.DeviceTS
		state["last_seq"] = c.Seq
		state["last_rx_ip"] = c.RemoteIP
		setDefault(state, "offline", false)
		setDefault(state, "last_alert_offline_ts", 0)
		setDefault(state, "last_alert_recover_ts", 0)

		body, err := json.MarshalIndent(state, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("encoding contact record: %w", err)
		}
		return body, nil
	})
}

// Get returns the raw contact record.
func (s *ContactStore) Get(ctx context.Context, deviceID string) (map[string]any, error) {
	body, err := s.records.Get(ctx, ContactKey(deviceID))
	if err != nil {
		return nil, err
	}
	state := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding contact record for %s: %w", deviceID, err)
	}
	return state, nil
}

func setDefault(m map[string]any, key string, value any) {
	if v, ok := m[key]; !ok || v == nil {
		m[key] = value
	}
}
