package item

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// DefaultWriteCountKey is the key used by ExecutionContextItemWriter when none is given.
const DefaultWriteCountKey = "writer.write_count"

// ExecutionContextItemWriter adds the number of items written to the job execution
// context of the running step. It is primarily used for testing and debugging.
type ExecutionContextItemWriter[I any] struct {
	key string
}

// NewExecutionContextItemWriter creates a new instance of ExecutionContextItemWriter.
func NewExecutionContextItemWriter[I any](key string) *ExecutionContextItemWriter[I] {
	if key == "" {
		key = DefaultWriteCountKey
	}
	return &ExecutionContextItemWriter[I]{key: key}
}

// Open does nothing.
func (w *ExecutionContextItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

// Write increments the counter stored under the writer's key.
//
// Parameters:
//
//	ctx: The context carrying the running StepExecution.
//	items: The items to be written.
func (w *ExecutionContextItemWriter[I]) Write(ctx context.Context, items []I) error {
	se := port.StepExecutionFromContext(ctx)
	if se == nil || se.JobExecution == nil {
		logger.Warnf("ExecutionContextItemWriter: No step execution in context, %d items not counted.", len(items))
		return nil
	}
	ec := se.JobExecution.ExecutionContext
	current, _ := ec.GetInt(w.key)
	ec.Put(w.key, current+len(items))
	logger.Debugf("ExecutionContextItemWriter: Updated '%s' to %d.", w.key, current+len(items))
	return nil
}

// Close does nothing.
func (w *ExecutionContextItemWriter[I]) Close(ctx context.Context) error {
	return nil
}

var _ port.ItemWriter[any] = (*ExecutionContextItemWriter[any])(nil)
