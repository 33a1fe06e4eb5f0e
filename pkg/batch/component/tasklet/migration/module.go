// Package migration provides the MigrationTasklet, which applies golang-migrate
// migrations from embedded filesystems to a named datasource.
package migration

import (
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration/filesystem"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// MigrationFS names a migration filesystem contributed to MigrationFSGroup.
type MigrationFS struct {
	Name string
	FS   fs.FS
}

// MigrationFSGroup collects the application migration filesystems.
const MigrationFSGroup = `group:"migration_fs"`

// ProvideMigrationFS contributes fsys under name to MigrationFSGroup.
func ProvideMigrationFS(name string, fsys fs.FS) fx.Option {
	return fx.Provide(fx.Annotate(
		func() MigrationFS { return MigrationFS{Name: name, FS: fsys} },
		fx.ResultTags(MigrationFSGroup),
	))
}

// AllMigrationFSParams gathers the framework and application filesystems.
type AllMigrationFSParams struct {
	fx.In
	Framework   fs.FS         `name:"frameworkMigrationsFS"`
	Application []MigrationFS `group:"migration_fs"`
}

// NewAllMigrationFS indexes every migration filesystem by name. The framework schema is
// registered as "framework".
func NewAllMigrationFS(p AllMigrationFSParams) map[string]fs.FS {
	all := map[string]fs.FS{"framework": p.Framework}
	for _, m := range p.Application {
		all[m.Name] = m.FS
	}
	return all
}

// MigrationTaskletBuilderParams defines the dependencies of the migrationTasklet builder.
type MigrationTaskletBuilderParams struct {
	fx.In
	Registry         *jsl.ComponentRegistry
	DBResolver       database.DBConnectionResolver
	MigratorProvider MigratorProvider
	AllMigrationFS   map[string]fs.FS `name:"allMigrationFS"`
}

// RegisterMigrationTaskletBuilder registers "migrationTasklet".
func RegisterMigrationTaskletBuilder(p MigrationTaskletBuilderParams) {
	p.Registry.Register(jsl.KindTasklet, "migrationTasklet", func(properties map[string]string) (interface{}, error) {
		return NewMigrationTasklet(properties, p.DBResolver, p.MigratorProvider, p.AllMigrationFS)
	})
	logger.Debugf("Component 'migrationTasklet' was registered.")
}

// Module provides the MigratorProvider, the migration filesystems and the
// migrationTasklet builder.
var Module = fx.Options(
	filesystem.Module,
	fx.Provide(NewMigratorProvider),
	fx.Provide(fx.Annotate(NewAllMigrationFS, fx.ResultTags(`name:"allMigrationFS"`))),
	fx.Invoke(RegisterMigrationTaskletBuilder),
)
