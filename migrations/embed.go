// Package migrations carries the SQL schema migrations, embedded so a binary
// can bring its own schema without a migration CLI on the host.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
