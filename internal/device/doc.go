// Package device provides the static Device Registry.
//
// The registry maps device ids to their display name, shared secret and
// offline grace period. It is read from a JSON or YAML file:
//
//	{"devices": [
//	  {"id": "X1", "name": "Roof array", "secret": "s3cret", "offline_grace_sec": 900}
//	]}
//
// A loaded *Registry is immutable. Services obtain one per invocation from
// a Source and pass it down explicitly; Source re-reads the file only when
// its modification time or size changes.
package device
