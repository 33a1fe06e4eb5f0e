package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
)

// GormTx implements tx.Tx on a gorm transaction handle.
type GormTx struct {
	db *gorm.DB
}

var _ tx.Tx = (*GormTx)(nil)

// NewGormTx wraps a handle returned by gorm's Begin.
func NewGormTx(db *gorm.DB) *GormTx {
	return &GormTx{db: db}
}

// DB returns the transaction handle, for readers and writers that need the full gorm API.
func (t *GormTx) DB() *gorm.DB {
	return t.db
}

func (t *GormTx) scoped(ctx context.Context, tableName string) *gorm.DB {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		return db.Table(tableName)
	}
	return db
}

// ExecuteUpdate runs a CREATE, UPDATE or DELETE of entity. For UPDATE and DELETE a
// non-empty query narrows the affected rows.
func (t *GormTx) ExecuteUpdate(ctx context.Context, entity interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := t.scoped(ctx, tableName)
	if len(query) > 0 && operation != "CREATE" {
		db = db.Where(query)
	}
	switch operation {
	case "CREATE":
		db = db.Create(entity)
	case "UPDATE":
		db = db.Model(entity).Updates(entity)
	case "DELETE":
		db = db.Delete(entity)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}
	return db.RowsAffected, db.Error
}

// ExecuteUpsert inserts entity. Rows colliding on conflictColumns get updateColumns
// overwritten, or are left alone when updateColumns is empty.
func (t *GormTx) ExecuteUpsert(ctx context.Context, entity interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	onConflict := clause.OnConflict{DoNothing: len(updateColumns) == 0}
	for _, col := range conflictColumns {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: col})
	}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	}
	db := t.scoped(ctx, tableName).Clauses(onConflict).Create(entity)
	return db.RowsAffected, db.Error
}

func (t *GormTx) Savepoint(name string) error           { return t.db.SavePoint(name).Error }
func (t *GormTx) RollbackToSavepoint(name string) error { return t.db.RollbackTo(name).Error }

// GormDBFromContext returns the gorm transaction handle carried by ctx.
func GormDBFromContext(ctx context.Context) (*gorm.DB, bool) {
	t, ok := tx.FromContext(ctx)
	if !ok {
		return nil, false
	}
	g, ok := t.(*GormTx)
	if !ok {
		return nil, false
	}
	return g.db, true
}

// GormTransactionManager implements tx.TransactionManager for one named datasource.
type GormTransactionManager struct {
	resolver database.DBConnectionResolver
	dbName   string
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a manager for the datasource dbName.
func NewGormTransactionManager(resolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{resolver: resolver, dbName: dbName}
}

// Begin starts a transaction on the datasource.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.resolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	g := conn.GormDB().WithContext(ctx).Begin(txOpts)
	if g.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", g.Error)
	}
	return &GormTx{db: g}, nil
}

func (m *GormTransactionManager) Commit(t tx.Tx) error {
	return finish(t, (*gorm.DB).Commit)
}

func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	return finish(t, (*gorm.DB).Rollback)
}

func finish(t tx.Tx, end func(*gorm.DB) *gorm.DB) error {
	g, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return end(g.db).Error
}

// GormTransactionManagerFactory creates transaction managers per datasource name.
type GormTransactionManagerFactory struct {
	resolver database.DBConnectionResolver
}

// NewGormTransactionManagerFactory creates the factory.
func NewGormTransactionManagerFactory(resolver database.DBConnectionResolver) *GormTransactionManagerFactory {
	return &GormTransactionManagerFactory{resolver: resolver}
}

// ForDatasource returns a TransactionManager bound to dbName.
func (f *GormTransactionManagerFactory) ForDatasource(dbName string) tx.TransactionManager {
	return NewGormTransactionManager(f.resolver, dbName)
}
