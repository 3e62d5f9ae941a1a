// Package db embeds the SQL migrations so binaries can apply them without a
// checkout of the repository.
package db

import "embed"

// Migrations holds the golang-migrate formatted files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
