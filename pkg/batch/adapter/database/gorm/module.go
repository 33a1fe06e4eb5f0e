package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
)

// Module provides the connection resolver and transaction manager factory.
// Dialect providers come from the sqlite, mysql and postgres subpackages.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		NewGormTransactionManagerFactory,
		func(f *GormTransactionManagerFactory) tx.TransactionManagerFactory { return f },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
