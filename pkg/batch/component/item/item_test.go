package item

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

func TestListItemReader_RestartsFromIndex(t *testing.T) {
	ctx := context.Background()
	source := []string{"a", "b", "c"}
	r := NewListItemReader("letters", source)
	source[0] = "changed"

	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first)
	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	idx, _ := ec.GetInt("letters.index")
	assert.Equal(t, 1, idx)

	restarted := NewListItemReader("letters", []string{"a", "b", "c"})
	require.NoError(t, restarted.Open(ctx, ec))
	var rest []string
	for {
		s, err := restarted.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			break
		}
		require.NoError(t, err)
		rest = append(rest, s)
	}
	assert.Equal(t, []string{"b", "c"}, rest)
	require.NoError(t, restarted.Close(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewListItemReader("x", []int{1}).Read(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutionContextItemWriter(t *testing.T) {
	je := model.NewJobExecution("inst", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "step")
	ctx := port.WithStepExecution(context.Background(), se)

	w := NewExecutionContextItemWriter[int]("")
	require.NoError(t, w.Write(ctx, []int{1, 2}))
	require.NoError(t, w.Write(ctx, []int{3}))
	count, _ := je.ExecutionContext.GetInt(DefaultWriteCountKey)
	assert.Equal(t, 3, count)

	assert.NoError(t, w.Write(context.Background(), []int{4}), "no step execution is tolerated")
}

func TestNoOpAndPassThrough(t *testing.T) {
	ctx := context.Background()
	_, err := NewNoOpItemReader[int]().Read(ctx)
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
	assert.NoError(t, NewNoOpItemWriter[int]().Write(ctx, []int{1}))
	out, err := NewPassThroughItemProcessor[string]().Process(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "same", out)
	assert.NoError(t, NewLoggingItemWriter[int]("log").Write(ctx, []int{1, 2}))
}

func TestRegisterGenericItemBuilders(t *testing.T) {
	registry := jsl.NewComponentRegistry()
	RegisterGenericItemBuilders(registry)
	assert.Equal(t, []string{"noOpItemReader"}, registry.Refs(jsl.KindReader))
	assert.Equal(t, []string{"passThroughItemProcessor"}, registry.Refs(jsl.KindProcessor))
	assert.Equal(t, []string{"executionContextItemWriter", "loggingItemWriter", "noOpItemWriter"}, registry.Refs(jsl.KindWriter))

	built, err := registry.Build(jsl.KindWriter, jsl.ComponentRef{Ref: "executionContextItemWriter", Properties: map[string]string{"key": "n"}})
	require.NoError(t, err)
	_, ok := built.(port.ItemWriter[any])
	assert.True(t, ok)
}
