package migrations

import "embed"

// FS contains the embedded schema for every SQL backend, one directory per
// driver.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
