package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
)

// GormDBConnectionResolver picks the provider of a datasource by its configured type.
type GormDBConnectionResolver struct {
	providers map[string]database.DBProvider
	configs   map[string]dbconfig.DatabaseConfig
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)

// ResolverParams are the fx inputs of NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver creates the resolver from the fx provider group.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	return NewResolver(p.Cfg.Surfin.Database, p.DBProviders...)
}

// NewResolver creates a resolver without fx.
func NewResolver(configs map[string]dbconfig.DatabaseConfig, providers ...database.DBProvider) *GormDBConnectionResolver {
	m := make(map[string]database.DBProvider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &GormDBConnectionResolver{providers: m, configs: configs}
}

// ResolveDBConnection returns the connection named name.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	}
	provider, ok := r.providers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no DBProvider registered for type '%s' (connection '%s')", cfg.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
