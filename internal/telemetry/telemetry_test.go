package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

func newRecords(t *testing.T) *recordstore.FileStore {
	t.Helper()
	fs, err := recordstore.NewFileStore(t.TempDir(), time.Second)
	require.NoError(t, err)
	return fs
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(newRecords(t))

	_, err := store.Get(ctx, "X1")
	assert.ErrorIs(t, err, recordstore.ErrNotFound)

	snap := Snapshot{
		V:          "1.00",
		Device:     "X1",
		TS:         1700000000,
		ISO:        "2023-11-15T07:13:20+09:00",
		Seq:        3,
		Metrics:    json.RawMessage(`{"batt_v":12.60,"soc":87}`),
		ServerRxTS: 1700000005,
	}
	require.NoError(t, store.Put(ctx, snap))

	got, err := store.Get(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, snap.TS, got.TS)
	assert.Equal(t, snap.ServerRxTS, got.ServerRxTS)
	assert.JSONEq(t, `{"batt_v":12.60,"soc":87}`, string(got.Metrics))

	raw, err := store.Raw(ctx, "X1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"server_rx_ts": 1700000005`)
}

func TestSnapshot_LooseDecoding(t *testing.T) {
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"v":1.00,"ts":"1700000000","seq":2.0,"iso":"x"}`), &snap))
	assert.Equal(t, "1.00", snap.V)
	assert.Equal(t, int64(1700000000), snap.TS)
	assert.Equal(t, int64(2), snap.Seq)

	require.NoError(t, json.Unmarshal([]byte(`{"ts":"soon"}`), &snap))
	assert.Zero(t, snap.TS)
}

func TestLooseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{``, 0},
		{`null`, 0},
		{`42`, 42},
		{`"42"`, 42},
		{`42.9`, 42},
		{`-5`, -5},
		{`"abc"`, 0},
		{`true`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooseInt(json.RawMessage(tt.in)), tt.in)
	}
}

func TestContactStore_TouchDefaultsAndPreserves(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	store := NewContactStore(records)

	require.NoError(t, store.Touch(ctx, "X1", Contact{ServerTS: 100, DeviceTS: 99, Seq: 1, RemoteIP: "10.0.0.2"}))

	state, err := store.Get(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("100"), state["last_seen_ts"])
	assert.Equal(t, json.Number("99"), state["last_seen_device_ts"])
	assert.Equal(t, "10.0.0.2", state["last_rx_ip"])
	assert.Equal(t, false, state["offline"])
	assert.Equal(t, json.Number("0"), state["last_alert_offline_ts"])
	assert.Equal(t, json.Number("0"), state["last_alert_recover_ts"])

	// Another writer set fields we must not touch.
	require.NoError(t, records.Put(ctx, ContactKey("X1"), []byte(`{
		"offline": true,
		"last_alert_offline_ts": 555,
		"note": "replaced panel"
	}`)))

	require.NoError(t, store.Touch(ctx, "X1", Contact{ServerTS: 200, DeviceTS: 198, Seq: 2}))

	state, err = store.Get(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("200"), state["last_seen_ts"])
	assert.Equal(t, true, state["offline"])
	assert.Equal(t, json.Number("555"), state["last_alert_offline_ts"])
	assert.Equal(t, json.Number("0"), state["last_alert_recover_ts"])
	assert.Equal(t, "replaced panel", state["note"])
}

func TestContactStore_CorruptRecordIsReplaced(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	require.NoError(t, records.Put(ctx, ContactKey("X1"), []byte(`{not json`)))

	store := NewContactStore(records)
	require.NoError(t, store.Touch(ctx, "X1", Contact{ServerTS: 1}))

	state, err := store.Get(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), state["last_seen_ts"])
}
