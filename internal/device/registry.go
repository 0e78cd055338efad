package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Logger defines the logging interface used by Source.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Registry is an immutable, ordered set of devices.
type Registry struct {
	devices []Device
	byID    map[string]int
	skipped []error
}

// registryFile is the on-disk layout. Entries stay untyped until
// deviceFromEntry so one bad entry cannot fail the whole document.
type registryFile struct {
	Devices []map[string]any `json:"devices" yaml:"devices"`
}

// NewRegistry validates devices and builds a Registry. Entries with an
// empty id are ignored; malformed ids, negative grace periods and
// duplicate ids are errors.
func NewRegistry(devices []Device) (*Registry, error) {
	return buildRegistry(devices, nil, false)
}

// buildRegistry adds devices in order. When lenient, an entry that fails
// validation is recorded in skipped instead of failing the registry.
func buildRegistry(devices []Device, skipped []error, lenient bool) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(devices)), skipped: skipped}
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		var err error
		switch _, dup := r.byID[d.ID]; {
		case !ValidID(d.ID):
			err = fmt.Errorf("%w: id %q has characters outside [A-Za-z0-9_-]", ErrInvalidDevice, d.ID)
		case d.OfflineGraceSec < 0:
			err = fmt.Errorf("%w: %s: offline_grace_sec cannot be negative", ErrInvalidDevice, d.ID)
		case dup:
			err = fmt.Errorf("%w: %s", ErrDuplicateDevice, d.ID)
		}
		if err != nil {
			if !lenient {
				return nil, err
			}
			r.skipped = append(r.skipped, err)
			continue
		}
		r.byID[d.ID] = len(r.devices)
		r.devices = append(r.devices, d)
	}
	return r, nil
}

// Parse decodes a registry document. format is "json" or "yaml".
//
// Field values are coerced the way hand-edited files tend to need
// (a grace of "900" or 900.0 reads as 900). Entries that still fail
// validation are left out and reported by Skipped.
func Parse(data []byte, format string) (*Registry, error) {
	var doc registryFile
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &doc)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing device registry: %w", err)
	}

	var skipped []error
	devices := make([]Device, 0, len(doc.Devices))
	for i, entry := range doc.Devices {
		d, err := deviceFromEntry(entry)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		devices = append(devices, d)
	}
	return buildRegistry(devices, skipped, true)
}

// Skipped lists the entries Parse left out, one error each.
func (r *Registry) Skipped() []error {
	return r.skipped
}

// LoadFile reads and parses a registry file, choosing the decoder by extension.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device registry: %w", err)
	}
	return Parse(data, formatFor(path))
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (Device, error) {
	i, ok := r.byID[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return r.devices[i], nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns the devices in file order. The slice is a copy.
func (r *Registry) List() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Source hands out the current Registry for a file, re-reading it when the
// file changes on disk. A failed reload keeps serving the last good registry.
//
// All methods are safe for concurrent use.
type Source struct {
	path   string
	logger Logger

	mu      sync.Mutex
	current *Registry
	modTime time.Time
	size    int64
}

// NewSource loads path once and fails if the initial load fails.
func NewSource(path string) (*Source, error) {
	s := &Source{path: path, logger: noopLogger{}}
	if _, err := s.Current(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger for reload events.
func (s *Source) SetLogger(logger Logger) {
	s.logger = logger
}

// Current returns the registry reflecting the file's latest valid contents.
func (s *Source) Current() (*Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if s.current != nil {
			s.logger.Warn("device registry unavailable, keeping last good copy", "path", s.path, "error", err)
			return s.current, nil
		}
		return nil, fmt.Errorf("reading device registry: %w", err)
	}

	if s.current != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.current, nil
	}

	reg, err := LoadFile(s.path)
	if err != nil {
		if s.current != nil {
			s.logger.Warn("device registry reload failed, keeping last good copy", "path", s.path, "error", err)
			return s.current, nil
		}
		return nil, err
	}

	s.current = reg
	s.modTime = info.ModTime()
	s.size = info.Size()
	for _, skipErr := range reg.Skipped() {
		s.logger.Warn("device registry entry skipped", "path", s.path, "error", skipErr)
	}
	s.logger.Info("device registry loaded", "path", s.path, "devices", reg.Len())
	return reg, nil
}

// Static serves a fixed Registry. Handy for one-shot commands and tests.
type Static struct {
	Registry *Registry
}

// Current returns the fixed registry.
func (s Static) Current() (*Registry, error) {
	return s.Registry, nil
}
