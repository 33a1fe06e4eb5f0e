package reader

import (
	"context"
	"strconv"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// cursorProperties are the JSL properties of "sqlCursorReader".
type cursorProperties struct {
	Name       string   `yaml:"name"`
	Datasource string   `yaml:"datasource"`
	Query      string   `yaml:"query"`
	Args       []string `yaml:"args"`
}

// pagingProperties are the JSL properties of "gormPagingReader".
type pagingProperties struct {
	Datasource   string   `yaml:"datasource"`
	Args         []string `yaml:"args"`
	PagingConfig `yaml:",squash"`
}

// literal turns a property string into the SQL argument it most likely denotes.
func literal(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func literals(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, literal(v))
	}
	return out
}

// RegisterReaderBuilders registers readers producing map[string]any rows, for job
// definitions that need no typed item.
func RegisterReaderBuilders(registry *jsl.ComponentRegistry, resolver database.DBConnectionResolver) {
	registry.Register(jsl.KindReader, "sqlCursorReader", func(properties map[string]string) (interface{}, error) {
		var p cursorProperties
		if err := configbinder.BindStringProperties(properties, &p); err != nil {
			return nil, exception.NewConfigurationError("reader", "sqlCursorReader: %v", err)
		}
		if p.Datasource == "" || p.Query == "" {
			return nil, exception.NewConfigurationError("reader", "sqlCursorReader requires 'datasource' and 'query'")
		}
		if p.Name == "" {
			p.Name = "sqlCursorReader"
		}
		conn, err := resolver.ResolveDBConnection(context.Background(), p.Datasource)
		if err != nil {
			return nil, err
		}
		db, err := conn.GetSQLDB()
		if err != nil {
			return nil, err
		}
		return item.AnyReader[map[string]any](NewSqlCursorReader[map[string]any](db, p.Name, p.Query, literals(p.Args), ScanMap)), nil
	})

	registry.Register(jsl.KindReader, "gormPagingReader", func(properties map[string]string) (interface{}, error) {
		var p pagingProperties
		if err := configbinder.BindStringProperties(properties, &p); err != nil {
			return nil, exception.NewConfigurationError("reader", "gormPagingReader: %v", err)
		}
		if p.Datasource == "" {
			return nil, exception.NewConfigurationError("reader", "gormPagingReader requires 'datasource'")
		}
		if p.Name == "" {
			p.Name = "gormPagingReader"
		}
		conn, err := resolver.ResolveDBConnection(context.Background(), p.Datasource)
		if err != nil {
			return nil, err
		}
		cfg := p.PagingConfig
		cfg.Args = literals(p.Args)
		r, err := NewGormPagingReader[map[string]any](conn.GormDB(), cfg)
		if err != nil {
			return nil, err
		}
		return item.AnyReader[map[string]any](r), nil
	})
	logger.Debugf("Database readers (sqlCursorReader, gormPagingReader) were registered.")
}

// Module registers the database readers.
var Module = fx.Options(
	fx.Invoke(RegisterReaderBuilders),
)
