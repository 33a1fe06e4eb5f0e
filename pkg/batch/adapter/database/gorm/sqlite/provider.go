// Package sqlite registers the SQLite dialect with the gorm adapter.
package sqlite

import (
	"errors"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
)

// DBType is the dialect name used in configuration.
const DBType = "sqlite"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn := ConnectionString(cfg)
		if dsn == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(dsn), nil
	})
}

// ConnectionString returns the DSN, or the database file path.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.Database
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}

// Module registers the SQLite provider in the DBProvider group.
var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(database.DBProviderGroup)))
