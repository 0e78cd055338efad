// Package watchdog detects devices that stopped reporting and sends
// edge-triggered OFFLINE and RECOVER alerts.
//
// A run walks the registry, derives each device's last-seen time from its
// latest snapshot, classifies it against its grace period and compares the
// result with the flag persisted by the previous run. Alerts fire only on a
// change of flag and only when recipients are configured; the outcome is
// recorded in the device's watchdog record and never retried. Devices that
// have never reported are not watched.
//
// Runs must not overlap. The binary either runs once per invocation (for an
// external scheduler) or loops sequentially on a ticker.
package watchdog
