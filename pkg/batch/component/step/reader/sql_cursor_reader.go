// Package reader provides database-backed item readers: a cursor reader that holds one
// result set open for the whole step, and a paging reader that issues bounded queries.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RowMapper maps the current row of rows to an item.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// SqlCursorReader streams the rows of one query through a database cursor.
// The result set stays open from Open to Close, so the step's connection is held for its
// whole duration. Restart skips the rows read by the previous execution.
type SqlCursorReader[T any] struct {
	db        *sql.DB
	name      string
	query     string
	args      []any
	mapper    RowMapper[T]
	rows      *sql.Rows
	readCount int
}

// NewSqlCursorReader creates a new instance of SqlCursorReader. name keys the restart
// state and must be unique within a step.
func NewSqlCursorReader[T any](db *sql.DB, name string, query string, args []any, mapper RowMapper[T]) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		db:     db,
		name:   name,
		query:  query,
		args:   args,
		mapper: mapper,
	}
}

func (r *SqlCursorReader[T]) readCountKey() string {
	return r.name + ".readCount"
}

// Open executes the query and fast-forwards past the rows recorded in ec.
func (r *SqlCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if r.db == nil {
		return exception.NewConfigurationError("reader", "SqlCursorReader '%s' has no database", r.name)
	}
	r.readCount = 0
	skip, _ := ec.GetInt(r.readCountKey())

	rows, err := r.db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to execute query for SqlCursorReader '%s'", r.name), err, false, false)
	}
	r.rows = rows

	for r.readCount < skip {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to skip to row %d", r.name, skip), err, false, false)
			}
			break
		}
		r.readCount++
	}
	if skip > 0 {
		logger.Infof("SqlCursorReader '%s': Resumed after %d rows.", r.name, r.readCount)
	} else {
		logger.Debugf("SqlCursorReader '%s': Query opened: %s", r.name, r.query)
	}
	return nil
}

// Read returns the next row mapped to T, or port.ErrNoMoreItems.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s' is not open", r.name), errors.New("reader not initialized"), false, false)
	}
	if err := ctx.Err(); err != nil {
		return item, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewBatchError("reader", fmt.Sprintf("row iteration failed in SqlCursorReader '%s'", r.name), err, false, false)
		}
		return item, port.ErrNoMoreItems
	}
	mapped, err := r.mapper(r.rows)
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("failed to map row in SqlCursorReader '%s'", r.name), err, false, false)
	}
	r.readCount++
	return mapped, nil
}

// Close releases the cursor.
func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to close rows of SqlCursorReader '%s'", r.name), err, false, false)
	}
	logger.Debugf("SqlCursorReader '%s': Cursor closed after %d rows.", r.name, r.readCount)
	return nil
}

// GetExecutionContext returns the number of rows consumed so far.
func (r *SqlCursorReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.readCountKey(), r.readCount)
	return ec, nil
}

// Verify that SqlCursorReader implements the port.ItemReader interface at compile time.
var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)
