package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

// State is the per-device watchdog record.
type State struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	LastSeenTS      int64  `json:"last_seen_ts"`
	AgeSec          int64  `json:"age_sec"`
	OfflineGraceSec int64  `json:"offline_grace_sec"`
	Offline         bool   `json:"offline"`
	UpdatedTS       int64  `json:"updated_ts"`

	LastAlertTS   int64  `json:"last_alert_ts,omitempty"`
	LastAlertType string `json:"last_alert_type,omitempty"`
	LastAlertOK   *bool  `json:"last_alert_ok,omitempty"`
}

// StateKey returns the record key of a device's watchdog record.
func StateKey(deviceID string) string {
	return fmt.Sprintf("state/%s.json", deviceID)
}

// StateStore reads and replaces watchdog records.
type StateStore struct {
	records recordstore.Records
}

// NewStateStore creates a StateStore.
func NewStateStore(records recordstore.Records) *StateStore {
	return &StateStore{records: records}
}

// Get returns the device's record. found is false when there is none.
func (s *StateStore) Get(ctx context.Context, deviceID string) (st State, found bool, err error) {
	body, err := s.records.Get(ctx, StateKey(deviceID))
	if errors.Is(err, recordstore.ErrNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return State{}, false, fmt.Errorf("decoding watchdog record for %s: %w", deviceID, err)
	}
	return st, true, nil
}

// Put atomically replaces the device's record.
func (s *StateStore) Put(ctx context.Context, st State) error {
	body, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding watchdog record: %w", err)
	}
	return s.records.Put(ctx, StateKey(st.ID), body)
}

// Raw returns the stored record unparsed.
func (s *StateStore) Raw(ctx context.Context, deviceID string) ([]byte, error) {
	return s.records.Get(ctx, StateKey(deviceID))
}
