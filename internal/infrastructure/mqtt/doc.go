// Package mqtt provides MQTT broker connectivity for SolarWatch Core.
//
// It carries two flows:
//   - device telemetry on solarwatch/telemetry/<device>, fed to the ingest pipeline
//   - offline/recover alerts published on solarwatch/alert/<device>
//
// The client reconnects automatically and restores subscriptions after a
// reconnect. A retained status message on solarwatch/system/status, with a
// Last Will for crashes, tells other consumers whether the core is up.
//
// Handlers run on paho's goroutines; panics are recovered and handler
// errors are logged, never propagated to the broker.
package mqtt
