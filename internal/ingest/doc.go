// Package ingest validates device payloads and commits accepted samples.
//
// The pipeline runs in a fixed order and stops at the first failure:
//
//  1. payload is a non-empty JSON object
//  2. protocol version matches
//  3. device id is registered
//  4. metrics is a mapping
//  5. secret matches in constant time (an empty registered secret never matches)
//  6. device timestamp is plausible, otherwise server time is used
//
// Rejections carry a machine-readable reason and an HTTP status class and
// cause no writes. An accepted sample is appended to the time-series log,
// then the latest snapshot and the contact record are replaced.
//
// HTTP (internal/api) and MQTT both feed Service.Ingest.
package ingest
