// Package test provides mocks, fixtures and a throwaway SQLite datasource for tests of
// the batch packages.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
)

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)

// MockTx records the writes and savepoints a step issues inside one chunk transaction.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteUpdate(ctx context.Context, entity interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, entity, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) ExecuteUpsert(ctx context.Context, entity interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, entity, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) Savepoint(name string) error {
	return m.Called(name).Error(0)
}

func (m *MockTx) RollbackToSavepoint(name string) error {
	return m.Called(name).Error(0)
}

// MockTxManager scripts Begin/Commit/Rollback so tests can assert the chunk
// boundaries a step drew. A nil first return value from Begin means failure.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	t, _ := args.Get(0).(tx.Tx)
	return t, args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}
