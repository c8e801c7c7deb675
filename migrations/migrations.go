// Package migrations embeds the audit store SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
