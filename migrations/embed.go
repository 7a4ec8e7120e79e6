// Package migrations embeds the operation journal schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
