package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	coreconfig "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
)

// Resolver finds the provider for a named connection by its configured type.
type Resolver struct {
	providers map[string]Provider
	configs   map[string]storageconfig.Config
}

// ResolverParams are the fx inputs of NewResolver.
type ResolverParams struct {
	fx.In
	Config    *coreconfig.Config
	Providers []Provider `group:"storage_providers"`
}

// NewResolver creates a Resolver over the given providers.
func NewResolver(p ResolverParams) *Resolver {
	return NewResolverFromProviders(p.Config.Surfin.Storage, p.Providers...)
}

// NewResolverFromProviders creates a Resolver without fx.
func NewResolverFromProviders(configs map[string]storageconfig.Config, providers ...Provider) *Resolver {
	r := &Resolver{
		providers: make(map[string]Provider, len(providers)),
		configs:   configs,
	}
	for _, p := range providers {
		r.providers[p.Type()] = p
	}
	return r
}

// Resolve returns the connection configured under name.
func (r *Resolver) Resolve(ctx context.Context, name string) (Connection, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("storage connection '%s' not found in configuration", name)
	}
	p, ok := r.providers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (connection '%s')", cfg.Type, name)
	}
	return p.GetConnection(name)
}

// CloseAll closes every provider's connections.
func (r *Resolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Module provides the Resolver and closes all storage connections on stop.
var Module = fx.Options(
	fx.Provide(NewResolver),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
