package watchdog

import (
	"strings"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/notify"
	"github.com/nerrad567/solarwatch-core/internal/telemetry"
)

// isoLayouts carry their own offset.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
}

// localLayouts have no offset and are read in the site timezone.
var localLayouts = []string{
	time.DateTime,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// LastSeen returns the device time of the snapshot: its numeric ts when
// positive, otherwise its ISO timestamp. Timestamps without an offset are
// taken to be in loc. ok is false when neither yields a positive Unix time.
func LastSeen(snap *telemetry.Snapshot, loc *time.Location) (ts int64, ok bool) {
	if snap == nil {
		return 0, false
	}
	if snap.TS > 0 {
		return snap.TS, true
	}
	t, ok := parseTimestamp(strings.TrimSpace(snap.ISO), loc)
	if !ok || t.Unix() <= 0 {
		return 0, false
	}
	return t.Unix(), true
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ClampGrace returns the effective grace period: declared, or def when
// declared is unset, but never less than floor.
func ClampGrace(declared, floor, def int64) int64 {
	grace := declared
	if grace <= 0 {
		grace = def
	}
	if grace < floor {
		grace = floor
	}
	return grace
}

// Classify reports whether a device silent for age seconds is offline.
func Classify(age, grace int64) bool {
	return age > grace
}

// Transition compares the persisted flag with the current one and returns
// the alert kind to raise, if any.
func Transition(prevOffline, offline bool) (kind string, changed bool) {
	switch {
	case !prevOffline && offline:
		return notify.KindOffline, true
	case prevOffline && !offline:
		return notify.KindRecover, true
	default:
		return "", false
	}
}
