// Package bootstrap applies process-wide settings and prepares the history store
// before any job is launched.
package bootstrap

import (
	"context"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const bootstrapModule = "bootstrap"

// ApplyLoggingConfigHook applies the logging level, encoding and time zone from cfg.
func ApplyLoggingConfigHook(cfg *config.Config) {
	system := cfg.Surfin.System
	if system.Logging.Format != "" {
		logger.SetFormat(system.Logging.Format)
	}
	if system.Logging.Level != "" {
		logger.SetLogLevel(system.Logging.Level)
		logger.Infof("Log level set to: %s", system.Logging.Level)
	}
	if system.Timezone != "" {
		loc, err := time.LoadLocation(system.Timezone)
		if err != nil {
			logger.Warnf("Unknown time zone '%s', keeping %s: %v", system.Timezone, time.Local, err)
			return
		}
		time.Local = loc
	}
}

// FrameworkMigrationsParams defines the dependencies of RunFrameworkMigrationsHook.
type FrameworkMigrationsParams struct {
	fx.In
	Lifecycle        fx.Lifecycle
	Cfg              *config.Config
	DBResolver       database.DBConnectionResolver `optional:"true"`
	MigratorProvider migration.MigratorProvider    `optional:"true"`
	AllMigrationFS   map[string]fs.FS              `name:"allMigrationFS" optional:"true"`
}

// RunFrameworkMigrationsHook creates the history tables on start when the sql repository
// is selected with batch.repository.auto_migrate.
func RunFrameworkMigrationsHook(p FrameworkMigrationsParams) {
	repoCfg := p.Cfg.Surfin.Batch.Repository
	if !strings.EqualFold(repoCfg.Type, config.RepositoryTypeSQL) || !repoCfg.AutoMigrate {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return MigrateFramework(ctx, repoCfg.DBRef, p.DBResolver, p.MigratorProvider, p.AllMigrationFS)
		},
	})
}

// MigrateFramework applies the embedded history schema to the datasource dbRef. The
// dialect directory is chosen by the connection type.
func MigrateFramework(ctx context.Context, dbRef string, resolver database.DBConnectionResolver, provider migration.MigratorProvider, all map[string]fs.FS) error {
	if resolver == nil || provider == nil {
		return exception.NewConfigurationError(bootstrapModule, "auto_migrate needs the database adapter and migration modules")
	}
	frameworkFS, ok := all["framework"]
	if !ok {
		return exception.NewConfigurationError(bootstrapModule, "framework migrations are not registered")
	}
	conn, err := resolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return exception.NewBatchError(bootstrapModule, "cannot resolve datasource '"+dbRef+"' for framework migrations", err, false, false)
	}
	logger.Infof("Running framework migrations on datasource '%s' (%s).", dbRef, conn.Type())
	if err := provider.NewMigrator(conn).Up(ctx, frameworkFS, conn.Type(), migration.FixedFrameworkMigrationsTable); err != nil {
		return exception.NewBatchError(bootstrapModule, "framework migrations failed", err, false, false)
	}
	return nil
}
