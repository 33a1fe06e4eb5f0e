package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// slowQueryThreshold is where the gorm logger starts reporting statements as slow.
const slowQueryThreshold = 200 * time.Millisecond

// DialectorFactory turns a datasource config into a gorm.Dialector. Dialect packages
// register one from init.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var dialectors sync.Map // dialect name -> DialectorFactory

// RegisterDialector makes dbType openable. A later registration replaces an earlier one.
func RegisterDialector(dbType string, factory DialectorFactory) {
	if _, replaced := dialectors.Swap(dbType, factory); replaced {
		logger.Warnf("Dialector for type '%s' replaced.", dbType)
	}
}

func dialectorFor(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
	v, ok := dialectors.Load(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", cfg.Type)
	}
	d, err := v.(DialectorFactory)(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}
	return d, nil
}

// BaseProvider serves the datasources of one dialect, opening each on first use
// and sharing the pool afterwards.
type BaseProvider struct {
	dbType  string
	configs map[string]dbconfig.DatabaseConfig

	mu   sync.Mutex
	open map[string]database.DBConnection
}

var _ database.DBProvider = (*BaseProvider)(nil)

// NewBaseProvider serves the dbType datasources declared under surfin.database.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return NewBaseProviderFromConfigs(cfg.Surfin.Database, dbType)
}

func NewBaseProviderFromConfigs(configs map[string]dbconfig.DatabaseConfig, dbType string) *BaseProvider {
	return &BaseProvider{dbType: dbType, configs: configs, open: map[string]database.DBConnection{}}
}

func (p *BaseProvider) Type() string { return p.dbType }

// GetConnection returns datasource name, opening it if this is the first request.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.open[name]; ok {
		return conn, nil
	}

	dsCfg, ok := p.configs[name]
	switch {
	case !ok:
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	case dsCfg.Type != p.dbType:
		return nil, fmt.Errorf("provider type mismatch for '%s': provider serves '%s', datasource is '%s'", name, p.dbType, dsCfg.Type)
	}

	db, err := Open(dsCfg)
	if err != nil {
		return nil, err
	}
	conn := NewGormDBConnection(db, dsCfg, name)
	p.open[name] = conn
	logger.Infof("Opened datasource '%s' (%s).", name, p.dbType)
	return conn, nil
}

// CloseAll closes every opened datasource and forgets it.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result *multierror.Error
	for name, conn := range p.open {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close datasource '%s': %w", name, err))
		}
	}
	p.open = map[string]database.DBConnection{}
	return result.ErrorOrNil()
}

// Open opens a gorm handle on dsCfg and applies its pool limits.
func Open(dsCfg dbconfig.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(dsCfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(slowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pool := dsCfg.Pool
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
