package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/telemetry"
)

func TestMQTTHandler(t *testing.T) {
	f := newFixture(t)
	handle := f.svc.MQTTHandler(context.Background(), "solarwatch/telemetry/")

	body := []byte(`{"v":"1.00","device":"X1","secret":"s","ts":1700000000,"metrics":{"soc":50}}`)
	require.NoError(t, handle("solarwatch/telemetry/X1", body))

	snap, err := telemetry.NewSnapshotStore(f.store).Get(context.Background(), "X1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"soc":50}`, string(snap.Metrics))

	err = handle("solarwatch/telemetry/OTHER", body)
	rej, ok := IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUnknownDevice, rej.Reason)

	assert.Error(t, handle("other/topic/X1", body))
	assert.Error(t, handle("solarwatch/telemetry/X1/extra", body))
}
