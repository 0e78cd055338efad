package timeseries

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func newStore(t *testing.T) (*Store, *recordstore.FileStore) {
	t.Helper()
	fs, err := recordstore.NewFileStore(t.TempDir(), time.Second)
	require.NoError(t, err)
	return NewStore(fs, tokyo(t), nil), fs
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{
		"ts", "iso", "seq", "batt_v", "batt_a", "soc", "pv_v", "pv_a",
		"pv_w", "load_w", "temp_c", "charge_state",
	}, Fields)
}

func TestPartitionKey_UsesSiteTimezone(t *testing.T) {
	loc := tokyo(t)
	// 2023-10-31T16:00:00Z is already November in Tokyo.
	ts := time.Date(2023, 10, 31, 16, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, "data/X1/log/2023-11.csv", PartitionKey("X1", ts, loc))
	assert.Equal(t, "data/X1/log/2023-10.csv", PartitionKey("X1", ts, time.UTC))
}

func TestISO(t *testing.T) {
	assert.Equal(t, "2023-11-15T07:13:20+09:00", ISO(1700000000, tokyo(t)))
	assert.Equal(t, "2023-11-14T22:13:20+00:00", ISO(1700000000, time.UTC))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"json number keeps text", json.Number("12.60"), "12.60"},
		{"float", 12.6, "12.6"},
		{"int", 87, "87"},
		{"string", "FLOAT", "FLOAT"},
		{"true", true, "1"},
		{"false", false, ""},
		{"nested map", map[string]any{"a": 1}, ""},
		{"array", []any{1, 2}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestAppend_SingleSampleScenario(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "X1", Sample{
		TS:      1700000000,
		Metrics: map[string]any{"batt_v": json.Number("12.6"), "soc": json.Number("87")},
	})
	require.NoError(t, err)

	lines, err := store.Month(ctx, "X1", "2023-11")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, Fields, lines[0])
	assert.Equal(t, []string{
		"1700000000", "2023-11-15T07:13:20+09:00", "0",
		"12.6", "", "87", "", "", "", "", "", "",
	}, lines[1])
}

func TestAppend_UndoWithdrawsRow(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "X1", Sample{TS: 1700000000, Seq: 1})
	require.NoError(t, err)
	undo, err := store.Append(ctx, "X1", Sample{TS: 1700000060, Seq: 2})
	require.NoError(t, err)
	require.NoError(t, undo(ctx))

	lines, err := store.Month(ctx, "X1", "2023-11")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "1", lines[1][2])
}

func TestMonth_Errors(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Month(ctx, "X1", "2023-11")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = store.Month(ctx, "X1", "2023-13")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = store.Month(ctx, "X1", "../../etc")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRange_SpansMonthsAndFilters(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	loc := tokyo(t)

	at := func(y int, m time.Month, d, h int) int64 {
		return time.Date(y, m, d, h, 0, 0, 0, loc).Unix()
	}
	for i, ts := range []int64{
		at(2024, 1, 30, 12), // before range
		at(2024, 1, 31, 0),  // first second of range
		at(2024, 2, 15, 8),
		at(2024, 3, 1, 23), // last day of range
		at(2024, 3, 2, 0),  // after range
	} {
		_, err := store.Append(ctx, "X1", Sample{TS: ts, Seq: int64(i)})
		require.NoError(t, err)
	}

	lines, err := store.Range(ctx, "X1", "2024-01-31", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, Fields, lines[0])
	assert.Equal(t, "1", lines[1][2])
	assert.Equal(t, "2", lines[2][2])
	assert.Equal(t, "3", lines[3][2])
}

func TestRange_Errors(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Range(ctx, "X1", "2024-01-01", "2024-01-31")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = store.Range(ctx, "X1", "2024/01/01", "2024-01-31")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = store.Range(ctx, "X1", "2024-02-01", "2024-01-31")
	assert.ErrorIs(t, err, ErrInvalidRange)

	// 93 inclusive days is the limit.
	_, err = store.Range(ctx, "X1", "2024-01-01", "2024-04-02")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = store.Range(ctx, "X1", "2024-01-01", "2024-04-03")
	assert.ErrorIs(t, err, ErrRangeTooLarge)
}

func TestRange_EmptyMatchKeepsHeader(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	_, err := store.Append(ctx, "X1", Sample{TS: time.Date(2024, 5, 1, 0, 0, 0, 0, tokyo(t)).Unix()})
	require.NoError(t, err)

	lines, err := store.Range(ctx, "X1", "2024-05-10", "2024-05-11")
	require.NoError(t, err)
	assert.Equal(t, [][]string{Fields}, lines)
}

func TestMonthsBetween(t *testing.T) {
	loc := tokyo(t)
	start := time.Date(2023, 12, 15, 0, 0, 0, 0, loc)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-02"}, monthsBetween(start, end))
}
