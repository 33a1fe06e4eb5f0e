package item_test

import (
	"context"
	"errors"
	"sync"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

const offsetKey = "slice.offset"

// sliceReader reads items from a slice and checkpoints its offset.
type sliceReader[T any] struct {
	items  []T
	offset int
	// failAt makes the read at that offset fail once with failErr.
	failAt  int
	failErr error
	opened  bool
	closed  bool
}

func newSliceReader[T any](items ...T) *sliceReader[T] {
	return &sliceReader[T]{items: items, failAt: -1}
}

func (r *sliceReader[T]) Open(_ context.Context, ec model.ExecutionContext) error {
	r.opened = true
	if off, ok := ec.GetInt(offsetKey); ok {
		r.offset = off
	}
	return nil
}

func (r *sliceReader[T]) Read(context.Context) (T, error) {
	var zero T
	if r.offset == r.failAt && r.failErr != nil {
		err := r.failErr
		r.failErr = nil
		return zero, err
	}
	if r.offset >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.offset]
	r.offset++
	return item, nil
}

func (r *sliceReader[T]) Close(context.Context) error {
	r.closed = true
	return nil
}

func (r *sliceReader[T]) GetExecutionContext(context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(offsetKey, r.offset)
	return ec, nil
}

// listWriter keeps every committed chunk. failures are returned by the next writes.
type listWriter[T any] struct {
	mu       sync.Mutex
	chunks   [][]T
	failures []error
	closed   bool
}

func (w *listWriter[T]) Open(context.Context, model.ExecutionContext) error { return nil }

func (w *listWriter[T]) Write(_ context.Context, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.failures) > 0 {
		err := w.failures[0]
		w.failures = w.failures[1:]
		return err
	}
	w.chunks = append(w.chunks, append([]T(nil), items...))
	return nil
}

func (w *listWriter[T]) Close(context.Context) error {
	w.closed = true
	return nil
}

func (w *listWriter[T]) all() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []T
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}

type processorFunc[I, O any] func(ctx context.Context, item I) (O, error)

func (f processorFunc[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

var errBadItem = errors.New("bad item")

func newStepExecution() *model.StepExecution {
	je := model.NewJobExecution("instance", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "chunk")
	je.AddStepExecution(se)
	return se
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
