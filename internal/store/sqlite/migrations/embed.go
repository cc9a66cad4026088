// Package migrations embeds the SQL migration files for the SQLite KV driver.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
