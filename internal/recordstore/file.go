package recordstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	lockSuffix     = ".lock"
	lockRetryDelay = 20 * time.Millisecond
)

// FileStore keeps partitions and records as files under a root directory.
//
// Every key has a sidecar "<file>.lock" guarded with flock(2), so the
// store is safe across goroutines and across processes on the same host
// (the HTTP server and a cron-driven watchdog, for instance).
type FileStore struct {
	root        string
	lockTimeout time.Duration
}

// NewFileStore creates root if needed.
func NewFileStore(root string, lockTimeout time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &FileStore{root: root, lockTimeout: lockTimeout}, nil
}

// Root returns the store's base directory.
func (s *FileStore) Root() string { return s.root }

// HealthCheck verifies the root directory is still present.
func (s *FileStore) HealthCheck(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root %s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op; the file store holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) resolve(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// lock takes the sidecar lock for target, exclusive or shared.
func (s *FileStore) lock(ctx context.Context, target string, exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(target + lockSuffix)
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, filepath.Base(target), err)
	}
	return func() { _ = fl.Unlock() }, nil //nolint:errcheck // closing the fd releases the lock anyway
}

// Append implements Partitions. The existence check happens under the
// partition lock, and header plus row go out in a single write followed
// by fsync. A failed write truncates the file back to its prior size.
func (s *FileStore) Append(ctx context.Context, key string, header, row []string) (Undo, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, target, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var prevSize int64
	info, err := os.Stat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// new partition
	case err != nil:
		return nil, fmt.Errorf("stat partition: %w", err)
	default:
		prevSize = info.Size()
	}
	isNew := info == nil

	rowBytes, err := encodeCSV(row)
	if err != nil {
		return nil, err
	}
	rowOffset := prevSize
	payload := rowBytes
	if isNew {
		headerBytes, err := encodeCSV(header)
		if err != nil {
			return nil, err
		}
		rowOffset = int64(len(headerBytes))
		payload = append(headerBytes, rowBytes...)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening partition: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		rollback(f, target, prevSize, isNew)
		return nil, fmt.Errorf("writing partition: %w", err)
	}
	if err := f.Sync(); err != nil {
		rollback(f, target, prevSize, isNew)
		return nil, fmt.Errorf("syncing partition: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing partition: %w", err)
	}
	return s.undoAppend(key, target, rowOffset, rowBytes, isNew), nil
}

// undoAppend cuts rowBytes out of the partition at rowOffset. Rows appended
// after it are kept; when the partition holds nothing else and this append
// created it, the file is removed.
func (s *FileStore) undoAppend(key, target string, rowOffset int64, rowBytes []byte, created bool) Undo {
	return func(ctx context.Context) error {
		unlock, err := s.lock(ctx, target, true)
		if err != nil {
			return err
		}
		defer unlock()

		data, err := os.ReadFile(target)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrUndoConflict, key)
		}
		if err != nil {
			return fmt.Errorf("reading partition: %w", err)
		}
		end := rowOffset + int64(len(rowBytes))
		if int64(len(data)) < end || !bytes.Equal(data[rowOffset:end], rowBytes) {
			return fmt.Errorf("%w: %s", ErrUndoConflict, key)
		}

		switch {
		case int64(len(data)) == end && created:
			if err := os.Remove(target); err != nil {
				return fmt.Errorf("removing partition: %w", err)
			}
		case int64(len(data)) == end:
			if err := os.Truncate(target, rowOffset); err != nil {
				return fmt.Errorf("truncating partition: %w", err)
			}
		default:
			rest := append(data[:rowOffset:rowOffset], data[end:]...)
			if err := writeAtomic(target, rest); err != nil {
				return err
			}
		}
		return nil
	}
}

// rollback undoes a failed append: a partition created by this call is
// removed, an existing one is cut back to prevSize.
func rollback(f *os.File, target string, prevSize int64, created bool) {
	_ = f.Truncate(prevSize) //nolint:errcheck // best effort
	_ = f.Close()            //nolint:errcheck // best effort
	if created {
		_ = os.Remove(target) //nolint:errcheck // best effort
	}
}

// Read implements Partitions under a shared lock so no half-written row is seen.
func (s *FileStore) Read(ctx context.Context, key string) ([][]string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	unlock, err := s.lock(ctx, target, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	lines, err := newCSVReader(data).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing partition %s: %w", key, err)
	}
	return lines, nil
}

// Get implements Records. Renames are atomic, so no lock is needed to read.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return data, nil
}

// Put implements Records.
func (s *FileStore) Put(ctx context.Context, key string, body []byte) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, target, true)
	if err != nil {
		return err
	}
	defer unlock()

	return writeAtomic(target, body)
}

// Delete implements Records.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, target, true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing record: %w", err)
	}
	return nil
}

// ReadModifyWrite implements Records. The lock is held from read to rename.
func (s *FileStore) ReadModifyWrite(ctx context.Context, key string, fn ModifyFunc) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, target, true)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := os.ReadFile(target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading record: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	return writeAtomic(target, next)
}

// writeAtomic writes body to a temp file beside target, fsyncs it and
// renames it over target.
func writeAtomic(target string, body []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()        //nolint:errcheck // best effort
		_ = os.Remove(tmpName) //nolint:errcheck // best effort
	}

	if _, err := tmp.Write(body); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort
		return fmt.Errorf("replacing record: %w", err)
	}
	return nil
}
