package device

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Device is one registered field unit.
type Device struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Secret string `json:"secret" yaml:"secret"`

	// OfflineGraceSec is the declared grace; zero means "use the default".
	// The watchdog applies the floor and default.
	OfflineGraceSec int64 `json:"offline_grace_sec" yaml:"offline_grace_sec"`
}

// DisplayName returns Name, or ID when no name is set.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// ValidID reports whether id only uses letters, digits, '_' and '-'.
// Ids become path segments and MQTT topic levels, so nothing else is allowed.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// deviceFromEntry converts one decoded registry entry into a Device.
func deviceFromEntry(entry map[string]any) (Device, error) {
	id, err := looseString(entry["id"])
	if err != nil {
		return Device{}, fmt.Errorf("%w: id: %v", ErrInvalidDevice, err)
	}
	name, err := looseString(entry["name"])
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s: name: %v", ErrInvalidDevice, id, err)
	}
	secret, err := looseString(entry["secret"])
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s: secret: %v", ErrInvalidDevice, id, err)
	}
	grace, err := looseSeconds(entry["offline_grace_sec"])
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s: offline_grace_sec: %v", ErrInvalidDevice, id, err)
	}
	return Device{ID: id, Name: name, Secret: secret, OfflineGraceSec: grace}, nil
}

// looseString accepts strings and plain numbers.
func looseString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}

// looseSeconds accepts integers, floats (truncated) and numeric strings.
// Missing or blank values are zero.
func looseSeconds(v any) (int64, error) {
	var f float64
	switch v := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v.String())
		}
		f = parsed
	case float64:
		f = v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, fmt.Errorf("%v out of range", f)
	}
	return int64(f), nil
}
