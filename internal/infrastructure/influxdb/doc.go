// Package influxdb mirrors accepted telemetry samples into InfluxDB.
//
// The mirror is optional and best effort. The record store stays the
// source of truth: a sample is mirrored only after it has been committed,
// and a failed or slow InfluxDB never affects ingest. Write errors arrive
// asynchronously via SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	client.SetOnError(func(err error) { log.Warn("mirror write failed", "error", err) })
//	defer client.Close()
//
// Each sample becomes one point on the solar_telemetry measurement, tagged
// with the device id.
package influxdb
