package item

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// LoggingItemWriter logs every item of a chunk at INFO level.
type LoggingItemWriter[I any] struct {
	name string
}

// NewLoggingItemWriter creates a new instance of [LoggingItemWriter].
func NewLoggingItemWriter[I any](name string) *LoggingItemWriter[I] {
	return &LoggingItemWriter[I]{name: name}
}

// Open does nothing.
func (w *LoggingItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

// Write logs items.
func (w *LoggingItemWriter[I]) Write(ctx context.Context, items []I) error {
	for _, item := range items {
		logger.Infof("%s: Current item = %+v", w.name, item)
	}
	return nil
}

// Close does nothing.
func (w *LoggingItemWriter[I]) Close(ctx context.Context) error {
	return nil
}

var _ port.ItemWriter[any] = (*LoggingItemWriter[any])(nil)
