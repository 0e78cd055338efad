package recordstore

import "errors"

var (
	// ErrNotFound is returned when a partition or record does not exist.
	ErrNotFound = errors.New("recordstore: not found")

	// ErrInvalidKey is returned for keys that are empty, absolute, or
	// escape the store root.
	ErrInvalidKey = errors.New("recordstore: invalid key")

	// ErrLockTimeout is returned when a partition or record lock could not
	// be acquired in time.
	ErrLockTimeout = errors.New("recordstore: lock timeout")

	// ErrUndoConflict is returned when an appended row can no longer be
	// found where it was written.
	ErrUndoConflict = errors.New("recordstore: appended row not found for undo")
)
