package migrations

import "embed"

// FS contains the schema migrations shared by the postgres and sqlite stores.
//
//go:embed *.sql
var FS embed.FS
