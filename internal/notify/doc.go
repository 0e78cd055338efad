// Package notify delivers watchdog alerts.
//
// A Notifier reports success as a plain bool: the watchdog records the
// outcome and never retries, so there is nothing more useful to return.
// SMTP, MQTT and Log implementations can be combined with Fanout.
//
// The recipient list lives in the record store next to device data and is
// edited through the HTTP API.
package notify
