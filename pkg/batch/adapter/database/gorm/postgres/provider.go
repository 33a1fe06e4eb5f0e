// Package postgres registers the PostgreSQL dialect with the gorm adapter.
package postgres

import (
	"fmt"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
)

// DBType is the dialect name used in configuration.
const DBType = "postgres"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the key/value DSN understood by pgx.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("password=%s", c.Password),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if c.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", c.Schema))
	}
	return strings.Join(parts, " ")
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}

// Module registers the PostgreSQL provider in the DBProvider group.
var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(database.DBProviderGroup)))
