// Package migrations embeds the SQLite schema so the binary can migrate
// itself on start.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
