package device

import "errors"

var (
	// ErrDeviceNotFound is returned when a device id is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a registry entry fails validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrDuplicateDevice is returned when the same id appears twice.
	ErrDuplicateDevice = errors.New("device: duplicate id")
)
