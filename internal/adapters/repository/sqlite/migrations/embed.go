package migrations

import "embed"

// FS contains embedded SQLite migrations for the steamwatch store.
//
//go:embed *.sql
var FS embed.FS
