// Package migrations embeds the SQL schema so the binary does not depend on its working directory.
package migrations

import "embed"

// Files holds every *.sql migration, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
