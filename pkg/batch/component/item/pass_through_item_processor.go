package item

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
)

var _ port.ItemProcessor[any, any] = PassThroughItemProcessor[any]{}

// PassThroughItemProcessor hands every item to the writer unchanged.
type PassThroughItemProcessor[T any] struct{}

func NewPassThroughItemProcessor[T any]() PassThroughItemProcessor[T] {
	return PassThroughItemProcessor[T]{}
}

func (PassThroughItemProcessor[T]) Process(_ context.Context, item T) (T, error) {
	return item, nil
}
