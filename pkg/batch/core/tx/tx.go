// Package tx abstracts transaction management for chunk-oriented steps. A chunk's
// writes run inside one Tx which the step carries in the context; writers obtain it
// with FromContext so they never begin or commit transactions themselves.
package tx

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoTransaction is returned by writers that need a Tx but found none in the context.
var ErrNoTransaction = errors.New("no transaction in context")

// TxExecutor holds the write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate runs operation ("CREATE", "UPDATE" or "DELETE") for model on tableName.
	// query holds the column conditions of UPDATE and DELETE, combined with AND.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
	// An empty updateColumns means DO NOTHING on conflict.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx is an ongoing transaction.
type Tx interface {
	TxExecutor

	Savepoint(name string) error
	RollbackToSavepoint(name string) error
}

// TransactionManager begins, commits and rolls back transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

type contextKey struct{}

// WithTx returns a context carrying t.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the Tx carried by ctx.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(contextKey{}).(Tx)
	return t, ok
}

// NoopTransactionManager hands out transactions without a backing datasource. It serves
// steps whose writers keep their output outside any database.
type NoopTransactionManager struct{}

// NewNoopTransactionManager creates a NoopTransactionManager.
func NewNoopTransactionManager() *NoopTransactionManager {
	return &NoopTransactionManager{}
}

func (m *NoopTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return noopTx{}, nil
}

func (m *NoopTransactionManager) Commit(tx Tx) error   { return nil }
func (m *NoopTransactionManager) Rollback(tx Tx) error { return nil }

type noopTx struct{}

func (noopTx) ExecuteUpdate(context.Context, interface{}, string, string, map[string]interface{}) (int64, error) {
	return 0, ErrNoTransaction
}

func (noopTx) ExecuteUpsert(context.Context, interface{}, string, []string, []string) (int64, error) {
	return 0, ErrNoTransaction
}

func (noopTx) Savepoint(string) error           { return nil }
func (noopTx) RollbackToSavepoint(string) error { return nil }

// TransactionManagerFactory hands out the TransactionManager of a named datasource.
type TransactionManagerFactory interface {
	ForDatasource(name string) TransactionManager
}
