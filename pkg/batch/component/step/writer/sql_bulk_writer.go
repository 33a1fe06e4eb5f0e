// Package writer provides item writers that persist chunks to a database or export them
// to object storage.
package writer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// SqlBulkWriterConfig configures a SqlBulkWriter.
type SqlBulkWriterConfig struct {
	// Table is the target table. Empty uses the table of T.
	Table string `yaml:"table"`
	// BatchSize splits a chunk into several statements. 0 writes the chunk in one.
	BatchSize int `yaml:"batch_size"`
	// ConflictColumns turns the insert into an upsert on these columns.
	ConflictColumns []string `yaml:"conflict_columns"`
	// UpdateColumns are assigned on conflict; empty means DO NOTHING.
	UpdateColumns []string `yaml:"update_columns"`
}

// SqlBulkWriter writes a chunk with multi-row INSERT (or upsert) statements inside the
// chunk transaction. It never commits: the transaction is owned by the step.
type SqlBulkWriter[T any] struct {
	name string
	cfg  SqlBulkWriterConfig
}

// NewSqlBulkWriter creates a new instance of SqlBulkWriter.
//
// Parameters:
//
//	name: The writer name used in logs.
//	cfg: Target table and conflict handling.
//
// Returns:
//
//	A new SqlBulkWriter.
func NewSqlBulkWriter[T any](name string, cfg SqlBulkWriterConfig) *SqlBulkWriter[T] {
	return &SqlBulkWriter[T]{name: name, cfg: cfg}
}

// Verify that SqlBulkWriter implements the port.ItemWriter interface at compile time.
var _ port.ItemWriter[any] = (*SqlBulkWriter[any])(nil)

// Open does nothing; statements are built per chunk.
func (w *SqlBulkWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	logger.Debugf("SqlBulkWriter '%s': Opened (table %q).", w.name, w.cfg.Table)
	return nil
}

// Write inserts items using the transaction carried by ctx.
//
// Parameters:
//
//	ctx: The context carrying the chunk transaction.
//	items: The surviving items of the chunk.
//
// Returns:
//
//	tx.ErrNoTransaction when ctx carries no transaction, or the statement error.
func (w *SqlBulkWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	current, ok := tx.FromContext(ctx)
	if !ok {
		return exception.NewBatchError("writer", fmt.Sprintf("SqlBulkWriter '%s' needs a transaction", w.name), tx.ErrNoTransaction, false, false)
	}

	size := w.cfg.BatchSize
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := items[start:end]

		var err error
		if len(w.cfg.ConflictColumns) > 0 {
			_, err = current.ExecuteUpsert(ctx, batch, w.cfg.Table, w.cfg.ConflictColumns, w.cfg.UpdateColumns)
		} else {
			_, err = current.ExecuteUpdate(ctx, batch, "CREATE", w.cfg.Table, nil)
		}
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("SqlBulkWriter '%s': write of items %d..%d failed", w.name, start, end-1), err, false, false)
		}
	}
	logger.Debugf("SqlBulkWriter '%s': Wrote %d items.", w.name, len(items))
	return nil
}

// Close does nothing.
func (w *SqlBulkWriter[T]) Close(ctx context.Context) error {
	return nil
}
