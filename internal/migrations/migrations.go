// Package migrations embeds the goose migrations of the orders store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
