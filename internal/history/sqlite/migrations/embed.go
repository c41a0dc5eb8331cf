package migrations

import "embed"

// FS contains the SQLite migrations for the chat log.
//
//go:embed *.sql
var FS embed.FS
