package item

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// AnyReader exposes a typed reader as port.ItemReader[any] so it can be assembled from a
// job definition.
func AnyReader[T any](r port.ItemReader[T]) port.ItemReader[any] {
	return &anyReader[T]{r: r}
}

type anyReader[T any] struct {
	r port.ItemReader[T]
}

func (a *anyReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return a.r.Open(ctx, ec)
}

func (a *anyReader[T]) Read(ctx context.Context) (any, error) {
	v, err := a.r.Read(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *anyReader[T]) Close(ctx context.Context) error {
	return a.r.Close(ctx)
}

func (a *anyReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return a.r.GetExecutionContext(ctx)
}

// AnyProcessor exposes a typed processor as port.ItemProcessor[any, any]. An input of
// the wrong type is an error.
func AnyProcessor[I, O any](p port.ItemProcessor[I, O]) port.ItemProcessor[any, any] {
	return &anyProcessor[I, O]{p: p}
}

type anyProcessor[I, O any] struct {
	p port.ItemProcessor[I, O]
}

func (a *anyProcessor[I, O]) Process(ctx context.Context, item any) (any, error) {
	in, ok := item.(I)
	if !ok {
		var zero I
		return nil, fmt.Errorf("processor expects %T, got %T", zero, item)
	}
	out, err := a.p.Process(ctx, in)
	if err != nil {
		return nil, err
	}
	if port.IsNil(out) {
		return nil, nil
	}
	return out, nil
}

// AnyWriter exposes a typed writer as port.ItemWriter[any].
func AnyWriter[T any](w port.ItemWriter[T]) port.ItemWriter[any] {
	return &anyWriter[T]{w: w}
}

type anyWriter[T any] struct {
	w port.ItemWriter[T]
}

func (a *anyWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return a.w.Open(ctx, ec)
}

func (a *anyWriter[T]) Write(ctx context.Context, items []any) error {
	typed := make([]T, 0, len(items))
	for i, it := range items {
		v, ok := it.(T)
		if !ok {
			var zero T
			return fmt.Errorf("writer expects %T, got %T at index %d", zero, it, i)
		}
		typed = append(typed, v)
	}
	return a.w.Write(ctx, typed)
}

func (a *anyWriter[T]) Close(ctx context.Context) error {
	return a.w.Close(ctx)
}
