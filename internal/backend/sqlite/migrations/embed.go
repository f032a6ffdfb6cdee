package migrations

import "embed"

// FS contains embedded SQLite migrations for the key factor backend.
//
//go:embed *.sql
var FS embed.FS
