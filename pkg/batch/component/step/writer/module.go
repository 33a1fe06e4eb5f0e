package writer

import (
	"go.uber.org/fx"

	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterWriterBuilders registers "sqlBulkWriter", which writes map[string]any rows.
// Parquet export needs a typed schema, so applications register their ParquetWriter
// themselves.
func RegisterWriterBuilders(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindWriter, "sqlBulkWriter", func(properties map[string]string) (interface{}, error) {
		var cfg SqlBulkWriterConfig
		if err := configbinder.BindStringProperties(properties, &cfg); err != nil {
			return nil, exception.NewConfigurationError("writer", "sqlBulkWriter: %v", err)
		}
		if cfg.Table == "" {
			return nil, exception.NewConfigurationError("writer", "sqlBulkWriter requires 'table'")
		}
		name := properties["name"]
		if name == "" {
			name = cfg.Table
		}
		return item.AnyWriter[map[string]any](NewSqlBulkWriter[map[string]any](name, cfg)), nil
	})
	logger.Debugf("Database writers (sqlBulkWriter) were registered.")
}

// Module registers the generic writers.
var Module = fx.Options(
	fx.Invoke(RegisterWriterBuilders),
)
