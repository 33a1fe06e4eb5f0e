// Package gorm implements the database adapter on gorm. Dialects register themselves
// from the sqlite, mysql and postgres subpackages.
package gorm

import (
	"database/sql"
	"strings"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
)

// GormDBConnection implements database.DBConnection.
type GormDBConnection struct {
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

var _ database.DBConnection = (*GormDBConnection)(nil)

// NewGormDBConnection wraps an open gorm handle.
func NewGormDBConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormDBConnection {
	return &GormDBConnection{db: db, cfg: cfg, name: name}
}

func (c *GormDBConnection) Name() string                    { return c.name }
func (c *GormDBConnection) Type() string                    { return c.cfg.Type }
func (c *GormDBConnection) Config() dbconfig.DatabaseConfig { return c.cfg }
func (c *GormDBConnection) GormDB() *gorm.DB                { return c.db }

// GetSQLDB returns the pool behind the gorm handle.
func (c *GormDBConnection) GetSQLDB() (*sql.DB, error) {
	return c.db.DB()
}

// Close closes the pool.
func (c *GormDBConnection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsTableNotExistError recognises missing-table errors of the supported dialects.
func (c *GormDBConnection) IsTableNotExistError(err error) bool {
	return IsTableNotExistError(err)
}

// IsTableNotExistError recognises missing-table errors of sqlite, mysql and postgres.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "Error 1146") && strings.Contains(msg, "doesn't exist")) ||
		(strings.Contains(msg, "relation \"") && strings.Contains(msg, "does not exist"))
}
