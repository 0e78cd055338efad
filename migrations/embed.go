// Package migrations embeds the SQLite schema for the sqlite record store.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
