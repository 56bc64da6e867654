// Package migrations embeds the SQL schema for the alerts database.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
