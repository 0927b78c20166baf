// Package migrations embeds the goose SQL migrations for the vocabulary store.
package migrations

import "embed"

// FS holds the ordered migration files.
//
//go:embed *.sql
var FS embed.FS
