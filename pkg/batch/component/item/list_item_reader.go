package item

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ListItemReader reads items from an in-memory slice. Its position is checkpointed under
// "<name>.index", so a restarted step continues after the last committed item.
type ListItemReader[T any] struct {
	name  string
	items []T
	index int
}

// NewListItemReader creates a reader over a copy of items.
func NewListItemReader[T any](name string, items []T) *ListItemReader[T] {
	copied := make([]T, len(items))
	copy(copied, items)
	return &ListItemReader[T]{name: name, items: copied}
}

func (r *ListItemReader[T]) indexKey() string {
	return r.name + ".index"
}

// Open restores the position from ec.
func (r *ListItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.index = 0
	if idx, ok := ec.GetInt(r.indexKey()); ok && idx > 0 {
		r.index = min(idx, len(r.items))
		logger.Debugf("ListItemReader '%s': Resuming at index %d.", r.name, r.index)
	}
	return nil
}

// Read returns the next item, or [port.ErrNoMoreItems].
func (r *ListItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.index >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.index]
	r.index++
	return item, nil
}

// Close does nothing.
func (r *ListItemReader[T]) Close(ctx context.Context) error {
	return nil
}

// GetExecutionContext returns the current position.
func (r *ListItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.indexKey(), r.index)
	return ec, nil
}

var _ port.ItemReader[any] = (*ListItemReader[any])(nil)
