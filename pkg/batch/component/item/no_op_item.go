package item

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// NoOpItemReader is an implementation of [port.ItemReader] with an empty stream.
type NoOpItemReader[O any] struct{}

// NewNoOpItemReader creates a new instance of [NoOpItemReader].
func NewNoOpItemReader[O any]() *NoOpItemReader[O] {
	return &NoOpItemReader[O]{}
}

// Open does nothing.
func (r *NoOpItemReader[O]) Open(ctx context.Context, ec model.ExecutionContext) error {
	logger.Debugf("NoOpItemReader: Open called.")
	return nil
}

// Read always returns [port.ErrNoMoreItems].
func (r *NoOpItemReader[O]) Read(ctx context.Context) (O, error) {
	var zero O
	return zero, port.ErrNoMoreItems
}

// Close does nothing.
func (r *NoOpItemReader[O]) Close(ctx context.Context) error {
	return nil
}

// GetExecutionContext returns an empty [model.ExecutionContext].
func (r *NoOpItemReader[O]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}

// NoOpItemWriter is an implementation of [port.ItemWriter] that discards every chunk.
type NoOpItemWriter[I any] struct{}

// NewNoOpItemWriter creates a new instance of [NoOpItemWriter].
func NewNoOpItemWriter[I any]() *NoOpItemWriter[I] {
	return &NoOpItemWriter[I]{}
}

// Open does nothing.
func (w *NoOpItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

// Write discards items.
func (w *NoOpItemWriter[I]) Write(ctx context.Context, items []I) error {
	logger.Debugf("NoOpItemWriter: Write called with %d items.", len(items))
	return nil
}

// Close does nothing.
func (w *NoOpItemWriter[I]) Close(ctx context.Context) error {
	return nil
}

var (
	_ port.ItemReader[any] = (*NoOpItemReader[any])(nil)
	_ port.ItemWriter[any] = (*NoOpItemWriter[any])(nil)
)
