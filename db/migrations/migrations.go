// Package migrations embeds the schema migration files applied at worker boot
package migrations

import "embed"

// FS holds the versioned .sql migration pairs
//
//go:embed *.sql
var FS embed.FS
