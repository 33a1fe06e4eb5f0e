// Package migrations embeds the schema and seed data of the tutorial tables (pay, pay2
// and payment), one directory per dialect.
package migrations

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration"
)

// FSName is the migrationFSName referenced by the tutorial's migration steps.
const FSName = "tutorial"

//go:embed sqlite mysql postgres
var tutorialFS embed.FS

// FS returns the tutorial migrations.
func FS() fs.FS {
	return tutorialFS
}

// Module contributes the tutorial migrations to the migration filesystem group.
var Module = migration.ProvideMigrationFS(FSName, FS())
