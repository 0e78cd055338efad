package ingest

import (
	"fmt"
	"net/http"
)

// Rejection reasons, as returned to devices in the "error" field.
const (
	ReasonEmptyBody          = "empty body"
	ReasonInvalidJSON        = "invalid json"
	ReasonUnsupportedVersion = "unsupported version"
	ReasonUnknownDevice      = "unknown device"
	ReasonMetricsMissing     = "metrics missing"
	ReasonAuthFailed         = "auth failed"
	ReasonStorageFailure     = "storage failure"
)

// Rejection is the error returned for every refused payload.
type Rejection struct {
	Reason string
	Status int
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("ingest rejected: %s: %v", r.Reason, r.Err)
	}
	return "ingest rejected: " + r.Reason
}

func (r *Rejection) Unwrap() error { return r.Err }

// Security reports whether the rejection is an authentication event.
func (r *Rejection) Security() bool {
	return r.Status == http.StatusForbidden
}

func malformed(reason string) *Rejection {
	return &Rejection{Reason: reason, Status: http.StatusBadRequest}
}

func forbidden(reason string) *Rejection {
	return &Rejection{Reason: reason, Status: http.StatusForbidden}
}

func storageFailure(err error) *Rejection {
	return &Rejection{Reason: ReasonStorageFailure, Status: http.StatusInternalServerError, Err: err}
}
