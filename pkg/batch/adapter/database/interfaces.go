// Package database defines named datasource connections and how they are resolved.
package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
)

// DBConnection is a named, pooled datasource.
type DBConnection interface {
	Name() string
	// Type is the dialect: "sqlite", "mysql" or "postgres".
	Type() string
	Close() error
	Config() dbconfig.DatabaseConfig
	// GormDB returns the gorm handle bound to this datasource.
	GormDB() *gorm.DB
	// GetSQLDB returns the underlying pool, used by cursor readers and migrations.
	GetSQLDB() (*sql.DB, error)
	IsTableNotExistError(err error) bool
}

// DBProvider opens connections of one dialect.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
}

// DBConnectionResolver resolves a datasource by its configured name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx group collecting all DBProvider implementations.
const DBProviderGroup = `group:"db_providers"`
