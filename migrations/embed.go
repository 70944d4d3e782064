// Package migrations compiles the SQL migration files into the
// binary, so deployments never depend on loose .sql files. Importing
// it (the daemon does, blank) registers the embed with the database
// package.
package migrations

import (
	"embed"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/database"
)

//go:embed *.sql
var schemaFS embed.FS

func init() {
	database.MigrationsFS = schemaFS
	database.MigrationsDir = "."
}
