// Package migrations embeds the PostgreSQL schema scripts.
package migrations

import "embed"

// FS holds the *.sql files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
