// Package migrations embeds the SQL migration files into the binary so a
// device can build its state store without any files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/lumy-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
