package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// History tables kept by golang-migrate. The history store schema and the application
// schemas are versioned independently.
const (
	FixedFrameworkMigrationsTable = "batch_framework_migrations"
	FixedAppMigrationsTable       = "batch_app_migrations"
)

// Migrator applies or reverts every migration under path in migrationFS, recording
// progress in tableName.
type Migrator interface {
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
}

// MigratorProvider opens a Migrator on a resolved connection.
type MigratorProvider interface {
	NewMigrator(dbConn database.DBConnection) Migrator
}

// MigratorProviderFunc adapts a constructor to MigratorProvider.
type MigratorProviderFunc func(database.DBConnection) Migrator

func (f MigratorProviderFunc) NewMigrator(dbConn database.DBConnection) Migrator { return f(dbConn) }

// NewMigratorProvider returns the golang-migrate backed provider.
func NewMigratorProvider() MigratorProvider { return MigratorProviderFunc(NewMigrator) }

// migratorImpl runs golang-migrate against a pooled datasource.
type migratorImpl struct {
	dbConn database.DBConnection
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{dbConn: dbConn}
}

// databaseDriver wraps the pool of the connection. The driver is built on a dedicated
// *sql.Conn so closing the migrate instance never closes the shared pool.
func (m *migratorImpl) databaseDriver(ctx context.Context, tableName string) (migratedb.Driver, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch m.dbConn.Type() {
	case "postgres":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return mysql.WithConnection(ctx, conn, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbConn.Type())
	}
}

func (m *migratorImpl) run(ctx context.Context, migrationFS fs.FS, path, tableName string, apply func(*migrate.Migrate) error, command string) error {
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.dbConn.Name(), path, tableName)

	source, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	driver, err := m.databaseDriver(ctx, tableName)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	instance, err := migrate.NewWithInstance("iofs", source, m.dbConn.Type(), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// sqlite's driver closes the pool it was given
	if m.dbConn.Type() != "sqlite" {
		defer instance.Close()
	}

	if err := apply(instance); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, verr := instance.Version()
		if verr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty: %t).", command, version, dirty)
		}
		return fmt.Errorf("migration '%s' failed (DB: %s, Path: %s): %w", command, m.dbConn.Type(), path, err)
	}
	logger.Infof("Migration '%s' on '%s' completed successfully.", command, m.dbConn.Name())
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, migrationFS, path, tableName, (*migrate.Migrate).Up, "up")
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, migrationFS, path, tableName, (*migrate.Migrate).Down, "down")
}
