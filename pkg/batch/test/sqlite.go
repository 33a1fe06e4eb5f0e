package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	dbadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration/filesystem"
)

// NewSQLiteResolver returns a resolver with one SQLite datasource called name, stored in
// a file below t.TempDir. Connections are closed when the test ends.
func NewSQLiteResolver(t *testing.T, name string) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	configs := map[string]dbconfig.DatabaseConfig{
		name: {
			Type: "sqlite",
			DSN:  "file:" + filepath.Join(t.TempDir(), name+".db") + "?_busy_timeout=5000",
		},
	}
	resolver := gormadapter.NewResolver(configs, gormadapter.NewBaseProviderFromConfigs(configs, "sqlite"))
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return resolver
}

// NewMigratedSQLiteResolver is NewSQLiteResolver with the history tables created.
func NewMigratedSQLiteResolver(t *testing.T, name string) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	resolver := NewSQLiteResolver(t, name)
	conn := MustConnection(t, resolver, name)
	err := migration.NewMigrator(conn).Up(context.Background(), filesystem.Schema(), "sqlite", migration.FixedFrameworkMigrationsTable)
	require.NoError(t, err)
	return resolver
}

// MustConnection resolves name or fails the test.
func MustConnection(t *testing.T, resolver dbadapter.DBConnectionResolver, name string) dbadapter.DBConnection {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), name)
	require.NoError(t, err)
	return conn
}
