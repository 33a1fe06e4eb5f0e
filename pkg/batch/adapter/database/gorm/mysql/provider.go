// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
)

// DBType is the dialect name used in configuration.
const DBType = "mysql"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the go-sql-driver DSN. Migration files hold several
// statements, so multiStatements is enabled.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}

// Module registers the MySQL provider in the DBProvider group.
var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(database.DBProviderGroup)))
