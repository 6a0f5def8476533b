package migrations

import "embed"

// Migrations holds the schema files applied by the sqlite driver.
//
//go:embed *.sql
var Migrations embed.FS
