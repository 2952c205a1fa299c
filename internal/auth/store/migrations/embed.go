// Package migrations embeds the schema shared by the sqlite and postgres
// drivers. Statements stick to the common subset of both dialects:
// timestamps are unix milliseconds in BIGINT columns.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
