package migrations

import "embed"

// FS contains embedded SQLite migrations for ad-hoc session storage.
//
//go:embed *.sql
var FS embed.FS
