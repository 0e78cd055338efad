package timeseries

import "errors"

var (
	// ErrNoData is returned when no partition covers the requested period.
	ErrNoData = errors.New("timeseries: no data")

	// ErrInvalidRange is returned for malformed dates or months, or a
	// range whose end precedes its start.
	ErrInvalidRange = errors.New("timeseries: invalid range")

	// ErrRangeTooLarge is returned when an export spans more than MaxRangeDays.
	ErrRangeTooLarge = errors.New("timeseries: range too large")
)
