package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

// Snapshot is the most recent accepted sample of a device.
type Snapshot struct {
	V          string          `json:"v"`
	Device     string          `json:"device"`
	TS         int64           `json:"ts"`
	ISO        string          `json:"iso"`
	Seq        int64           `json:"seq"`
	Metrics    json.RawMessage `json:"metrics"`
	ServerRxTS int64           `json:"server_rx_ts"`
}

// UnmarshalJSON accepts ts, seq and server_rx_ts as numbers or numeric
// strings. Anything else decodes as zero.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		V          json.RawMessage `json:"v"`
		Device     string          `json:"device"`
		TS         json.RawMessage `json:"ts"`
		ISO        string          `json:"iso"`
		Seq        json.RawMessage `json:"seq"`
		Metrics    json.RawMessage `json:"metrics"`
		ServerRxTS json.RawMessage `json:"server_rx_ts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Snapshot{
		V:          LooseString(raw.V),
		Device:     raw.Device,
		TS:         LooseInt(raw.TS),
		ISO:        raw.ISO,
		Seq:        LooseInt(raw.Seq),
		Metrics:    raw.Metrics,
		ServerRxTS: LooseInt(raw.ServerRxTS),
	}
	return nil
}

// LooseInt reads a JSON number or numeric string, truncating fractions.
// Missing, null or non-numeric values yield 0.
func LooseInt(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return int64(f)
	}
	return 0
}

// LooseString reads a JSON string or number as text. Other values yield "".
func LooseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// SnapshotKey returns the record key of a device's latest snapshot.
func SnapshotKey(deviceID string) string {
	return fmt.Sprintf("data/%s/latest.json", deviceID)
}

// SnapshotStore reads and replaces latest snapshots.
type SnapshotStore struct {
	records recordstore.Records
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(records recordstore.Records) *SnapshotStore {
	return &SnapshotStore{records: records}
}

// Put atomically replaces the device's snapshot.
func (s *SnapshotStore) Put(ctx context.Context, snap Snapshot) error {
	body, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.records.Put(ctx, SnapshotKey(snap.Device), body)
}

// Get returns the device's snapshot, or an error wrapping
// recordstore.ErrNotFound when the device has never reported.
func (s *SnapshotStore) Get(ctx context.Context, deviceID string) (*Snapshot, error) {
	body, err := s.records.Get(ctx, SnapshotKey(deviceID))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot for %s: %w", deviceID, err)
	}
	return &snap, nil
}

// Raw returns the stored snapshot document unparsed.
func (s *SnapshotStore) Raw(ctx context.Context, deviceID string) (json.RawMessage, error) {
	return s.records.Get(ctx, SnapshotKey(deviceID))
}

// Restore puts back a document previously returned by Raw. A nil prev
// means the device had no snapshot, so the current one is deleted.
func (s *SnapshotStore) Restore(ctx context.Context, deviceID string, prev json.RawMessage) error {
	if prev == nil {
		return s.records.Delete(ctx, SnapshotKey(deviceID))
	}
	return s.records.Put(ctx, SnapshotKey(deviceID), prev)
}
