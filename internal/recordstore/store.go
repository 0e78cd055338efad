package recordstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strings"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/database"
)

// Undo removes the row written by one Append. A partition that Append
// created is removed with it unless other rows have since been added.
type Undo func(ctx context.Context) error

// Partitions is an append-only log of CSV rows per key.
type Partitions interface {
	// Append writes header (only if the partition is new) followed by row.
	// The returned Undo lets a caller withdraw the row when a later step of
	// the same write fails.
	Append(ctx context.Context, key string, header, row []string) (Undo, error)

	// Read returns every line of the partition, header first.
	Read(ctx context.Context, key string) ([][]string, error)
}

// ModifyFunc receives the current record body (nil when absent) and returns
// the body to store. Returning an error aborts without writing.
type ModifyFunc func(current []byte) ([]byte, error)

// Records holds whole documents replaced atomically.
type Records interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key string) error

	// ReadModifyWrite runs fn under the key's lock and stores its result.
	ReadModifyWrite(ctx context.Context, key string, fn ModifyFunc) error
}

// Store combines both access patterns over a single backend.
type Store interface {
	Partitions
	Records

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close() //nolint:errcheck // error path
			return nil, err
		}
		return store, nil
	case config.BackendFile:
		return NewFileStore(cfg.Storage.DataDir, cfg.GetLockTimeout())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ValidateKey rejects keys that are empty, absolute, contain backslashes,
// or are not already in clean form (which rules out ".." escapes).
func ValidateKey(key string) error {
	switch {
	case key == "",
		strings.HasPrefix(key, "/"),
		strings.Contains(key, `\`),
		strings.ContainsRune(key, 0),
		path.Clean(key) != key,
		key == "." || key == ".." || strings.HasPrefix(key, "../"):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// encodeCSV renders lines as RFC 4180 CSV with LF line endings.
func encodeCSV(lines ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(lines); err != nil {
		return nil, fmt.Errorf("encoding csv: %w", err)
	}
	return buf.Bytes(), nil
}

func newCSVReader(data []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	return r
}
