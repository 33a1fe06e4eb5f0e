package pay

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/reader"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/writer"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// readerProperties are the JSL properties of "payReader".
type readerProperties struct {
	Datasource string `yaml:"datasource"`
	// MinAmount restricts the read to rows with amount >= MinAmount when positive.
	MinAmount           int64 `yaml:"min_amount"`
	reader.PagingConfig `yaml:",squash"`
}

// ComponentParams defines the dependencies of RegisterPayComponents.
type ComponentParams struct {
	fx.In
	Cfg        *config.Config
	Registry   *jsl.ComponentRegistry
	DBResolver database.DBConnectionResolver
	Storage    *storage.Resolver
}

// RegisterPayComponents registers payReader, payRecordProcessor, payParquetWriter and
// markPaidProcessor.
func RegisterPayComponents(p ComponentParams) {
	p.Registry.Register(jsl.KindReader, "payReader", func(properties map[string]string) (interface{}, error) {
		props := readerProperties{Datasource: "tutorial"}
		if err := configbinder.BindStringProperties(properties, &props); err != nil {
			return nil, exception.NewConfigurationError("pay", "payReader: %v", err)
		}
		cfg := props.PagingConfig
		if cfg.Name == "" {
			cfg.Name = "payReader"
		}
		if cfg.SortKey == "" {
			cfg.SortKey = "id"
		}
		if cfg.Mode == "" {
			cfg.Mode = reader.PagingModeKeyset
		}
		if props.MinAmount > 0 {
			cfg.Where = "amount >= ?"
			cfg.Args = []any{props.MinAmount}
		}
		conn, err := p.DBResolver.ResolveDBConnection(context.Background(), props.Datasource)
		if err != nil {
			return nil, err
		}
		r, err := reader.NewGormPagingReader[Pay](conn.GormDB(), cfg)
		if err != nil {
			return nil, err
		}
		return item.AnyReader[Pay](r.WithKeyFunc(payKey)), nil
	})

	p.Registry.Register(jsl.KindProcessor, "payRecordProcessor", func(properties map[string]string) (interface{}, error) {
		tz := properties["timezone"]
		if tz == "" {
			tz = p.Cfg.Surfin.System.Timezone
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, exception.NewConfigurationError("pay", "payRecordProcessor: unknown timezone '%s'", tz)
		}
		return item.AnyProcessor[Pay, Record](RecordProcessor{Location: loc}), nil
	})

	p.Registry.Register(jsl.KindWriter, "payParquetWriter", func(properties map[string]string) (interface{}, error) {
		props := make(map[string]interface{}, len(properties))
		for k, v := range properties {
			props[k] = v
		}
		w, err := writer.NewParquetWriter[Record]("payParquetWriter", props, p.Storage, new(Record), PartitionByDate)
		if err != nil {
			return nil, err
		}
		return item.AnyWriter[Record](w), nil
	})

	p.Registry.Register(jsl.KindProcessor, "markPaidProcessor", func(map[string]string) (interface{}, error) {
		return item.AnyProcessor[map[string]any, map[string]any](MarkPaid{}), nil
	})
	logger.Debugf("Pay components (payReader, payRecordProcessor, payParquetWriter, markPaidProcessor) were registered.")
}

// Module registers the pay components.
var Module = fx.Options(
	fx.Invoke(RegisterPayComponents),
)
