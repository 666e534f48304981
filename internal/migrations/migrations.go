// Package migrations embeds the database schema so that binaries do not depend on the working
// directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
