package migration

import (
	"context"
	"io/fs"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// TaskletConfig holds the JSL properties of a MigrationTasklet.
type TaskletConfig struct {
	// DBRef is the datasource to migrate.
	DBRef string `yaml:"dbRef"`
	// MigrationFSName selects a registered migration filesystem.
	MigrationFSName string `yaml:"migrationFSName"`
	// MigrationDir is the directory inside the filesystem; empty means the dialect name.
	MigrationDir string `yaml:"migrationDir"`
	// Command is "up" (default) or "down".
	Command string `yaml:"command"`
	// IsFramework selects the framework history table instead of the application one.
	IsFramework bool `yaml:"isFramework"`
}

// MigrationTasklet applies the migrations of a registered filesystem to a datasource.
type MigrationTasklet struct {
	cfg        TaskletConfig
	dbResolver database.DBConnectionResolver
	migrators  MigratorProvider
	fsys       fs.FS
}

// NewMigrationTasklet creates a new MigrationTasklet instance.
//
// Parameters:
//
//	properties: The JSL properties, bound onto TaskletConfig.
//	dbResolver: The database connection resolver.
//	migrators: The provider for obtaining Migrator instances.
//	allMigrationFS: All registered migration filesystems, by name.
//
// Returns:
//
//	A new MigrationTasklet, or a configuration error.
func NewMigrationTasklet(
	properties map[string]string,
	dbResolver database.DBConnectionResolver,
	migrators MigratorProvider,
	allMigrationFS map[string]fs.FS,
) (*MigrationTasklet, error) {
	var cfg TaskletConfig
	if err := configbinder.BindStringProperties(properties, &cfg); err != nil {
		return nil, exception.NewConfigurationError(taskletName, "%v", err)
	}
	if cfg.DBRef == "" {
		return nil, exception.NewConfigurationError(taskletName, "property 'dbRef' is required for MigrationTasklet")
	}
	if cfg.MigrationFSName == "" {
		return nil, exception.NewConfigurationError(taskletName, "property 'migrationFSName' is required for MigrationTasklet")
	}
	fsys, ok := allMigrationFS[cfg.MigrationFSName]
	if !ok {
		return nil, exception.NewConfigurationError(taskletName, "migration FS '%s' not found", cfg.MigrationFSName)
	}
	switch cfg.Command {
	case "":
		cfg.Command = "up"
	case "up", "down":
	default:
		return nil, exception.NewConfigurationError(taskletName, "unknown migration command: %s", cfg.Command)
	}

	logger.Debugf("MigrationTasklet initialized: DB=%s, FS=%s, Dir=%s, Command=%s, IsFramework=%t",
		cfg.DBRef, cfg.MigrationFSName, cfg.MigrationDir, cfg.Command, cfg.IsFramework)
	return &MigrationTasklet{cfg: cfg, dbResolver: dbResolver, migrators: migrators, fsys: fsys}, nil
}

// Execute runs the configured migration command.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	dbConn, err := t.dbResolver.ResolveDBConnection(ctx, t.cfg.DBRef)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "failed to resolve DB connection '"+t.cfg.DBRef+"'", err, false, true)
	}

	table := FixedAppMigrationsTable
	if t.cfg.IsFramework {
		table = FixedFrameworkMigrationsTable
	}
	dir := t.cfg.MigrationDir
	if dir == "" {
		dir = dbConn.Type()
	}

	migrator := t.migrators.NewMigrator(dbConn)
	if t.cfg.Command == "down" {
		err = migrator.Down(ctx, t.fsys, dir, table)
	} else {
		err = migrator.Up(ctx, t.fsys, dir, table)
	}
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "migration '"+t.cfg.Command+"' failed", err, false, false)
	}
	stepExecution.ExecutionContext.Put("migration.dir", dir)
	return model.ExitStatusCompleted, nil
}

// Verify that [MigrationTasklet] satisfies the [port.Tasklet] interface.
var _ port.Tasklet = (*MigrationTasklet)(nil)
