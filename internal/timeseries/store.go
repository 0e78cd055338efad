package timeseries

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

// MaxRangeDays bounds an export to keep a single request cheap.
const MaxRangeDays = 93

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Store appends samples to and reads from per-device monthly partitions.
type Store struct {
	parts   recordstore.Partitions
	loc     *time.Location
	metrics *metrics.Metrics
}

// NewStore creates a Store. m may be nil.
func NewStore(parts recordstore.Partitions, loc *time.Location, m *metrics.Metrics) *Store {
	return &Store{parts: parts, loc: loc, metrics: m}
}

// Location returns the site timezone used for partitioning.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Append writes one row for sample to the device's partition for sample.TS.
// The returned Undo withdraws that row again.
func (s *Store) Append(ctx context.Context, deviceID string, sample Sample) (recordstore.Undo, error) {
	start := time.Now()
	undo, err := s.parts.Append(ctx, PartitionKey(deviceID, sample.TS, s.loc), Fields, Row(sample, s.loc))
	s.metrics.ObserveAppend(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("appending sample for %s: %w", deviceID, err)
	}
	return undo, nil
}

// Month returns the raw partition for ym ("YYYY-MM"), header first.
func (s *Store) Month(ctx context.Context, deviceID, ym string) ([][]string, error) {
	if !monthPattern.MatchString(ym) {
		return nil, fmt.Errorf("%w: month %q", ErrInvalidRange, ym)
	}
	lines, err := s.parts.Read(ctx, MonthKey(deviceID, ym))
	if errors.Is(err, recordstore.ErrNotFound) {
		return nil, ErrNoData
	}
	return lines, err
}

// Range returns one header followed by every row whose ts lies within
// [from 00:00:00, to 23:59:59] in the site timezone. Dates are "YYYY-MM-DD".
func (s *Store) Range(ctx context.Context, deviceID, from, to string) ([][]string, error) {
	start, end, err := s.parseRange(from, to)
	if err != nil {
		return nil, err
	}
	fromTS, toTS := start.Unix(), end.Unix()

	var out [][]string
	found := false
	for _, ym := range monthsBetween(start, end) {
		lines, err := s.parts.Read(ctx, MonthKey(deviceID, ym))
		if errors.Is(err, recordstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true
		if len(lines) == 0 {
			continue
		}

		header := lines[0]
		tsIdx := slices.Index(header, "ts")
		if tsIdx < 0 {
			continue
		}
		if out == nil {
			out = append(out, header)
		}
		for _, row := range lines[1:] {
			if tsIdx >= len(row) {
				continue
			}
			ts, err := strconv.ParseInt(row[tsIdx], 10, 64)
			if err != nil || ts < fromTS || ts > toTS {
				continue
			}
			out = append(out, row)
		}
	}

	if !found {
		return nil, ErrNoData
	}
	if out == nil {
		out = [][]string{Fields}
	}
	return out, nil
}

func (s *Store) parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", from, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidRange)
	}
	endDay, err := time.ParseInLocation("2006-01-02", to, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidRange)
	}
	end := endDay.AddDate(0, 0, 1).Add(-time.Second)

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be >= from", ErrInvalidRange)
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w (max %d days)", ErrRangeTooLarge, MaxRangeDays)
	}
	return start, end, nil
}

// monthsBetween lists each "YYYY-MM" from start's month to end's month.
func monthsBetween(start, end time.Time) []string {
	var months []string
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	for !cur.After(last) {
		months = append(months, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}
