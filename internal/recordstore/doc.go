// Package recordstore is the key-addressed persistence layer shared by the
// time-series log, the latest snapshots and the watchdog/contact records.
//
// Two kinds of data live here:
//
//   - Partitions: append-only CSV logs. The first append to a partition
//     writes its header; concurrent first appends still produce exactly one
//     header, and a row is either fully written or not at all.
//   - Records: whole JSON documents replaced atomically, so readers see the
//     previous or the next version and never a torn file.
//
// Keys are slash-separated relative paths such as "data/X1/log/2023-11.csv".
//
// Two backends implement Store: a directory tree (FileStore) using flock
// sidecar locks and temp-file renames, and SQLite (SQLiteStore).
package recordstore
