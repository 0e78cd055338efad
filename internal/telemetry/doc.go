// Package telemetry keeps the per-device records written on every accepted
// sample: the latest snapshot (data/<id>/latest.json) and the contact
// record (data/<id>/state.json).
//
// The contact record is shared with external tooling, so updates only
// touch the contact fields and leave every other key as found.
package telemetry
