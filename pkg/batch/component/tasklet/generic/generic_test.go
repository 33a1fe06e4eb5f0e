package generic

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

func newStepExecution() *model.StepExecution {
	params := model.NewJobParameters()
	params.Put("date", "2024-01-31")
	je := model.NewJobExecution("inst", "job", params)
	return model.NewStepExecution(model.NewID(), je, "step")
}

func TestLoggingTasklet(t *testing.T) {
	exit, err := NewLoggingTasklet("step1", "", []string{"date"}, "").Execute(context.Background(), newStepExecution())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatus(""), exit)

	exit, err = NewLoggingTasklet("step1", "hello", nil, "NOOP").Execute(context.Background(), newStepExecution())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, exit)
}

func TestExecutionContextWriterTasklet(t *testing.T) {
	se := newStepExecution()
	exit, err := NewExecutionContextWriterTasklet("ec", map[string]string{
		"count.int":    "10",
		"ratio.float":  "0.5",
		"flag.bool":    "true",
		"name.string":  "test",
		"other.binary": "raw",
		"malformed":    "ignored",
	}).Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, exit)

	ec := se.JobExecution.ExecutionContext
	count, _ := ec.GetInt("count")
	assert.Equal(t, 10, count)
	ratio, _ := ec.GetFloat64("ratio")
	assert.Equal(t, 0.5, ratio)
	flag, _ := ec.GetBool("flag")
	assert.True(t, flag)
	name, _ := ec.GetString("name")
	assert.Equal(t, "test", name)
	other, _ := ec.GetString("other")
	assert.Equal(t, "raw", other)
	_, ok := ec.Get("malformed")
	assert.False(t, ok)

	exit, err = NewExecutionContextWriterTasklet("ec", map[string]string{"count.int": "ten"}).Execute(context.Background(), newStepExecution())
	require.Error(t, err)
	assert.Equal(t, model.ExitStatusFailed, exit)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.Contains(t, err.Error(), "failed to convert 'ten' to int for key 'count'")
	assert.NotContains(t, err.Error(), "%!")
}

func TestRandomFailTasklet_FailCountAcrossRestarts(t *testing.T) {
	task := NewRandomFailTasklet("flaky", 0, 2, nil)
	se := newStepExecution()
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		_, err := task.Execute(ctx, se)
		assert.Error(t, err, "run %d fails", run)
	}
	exit, err := task.Execute(ctx, se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, exit)
	runs, _ := se.ExecutionContext.GetInt(currentRunKey)
	assert.Equal(t, 3, runs)
}

func TestRandomFailTasklet_Rate(t *testing.T) {
	never := NewRandomFailTasklet("never", 0, 0, rand.New(rand.NewSource(1)))
	always := NewRandomFailTasklet("always", 1, 0, rand.New(rand.NewSource(1)))
	for i := 0; i < 10; i++ {
		_, err := never.Execute(context.Background(), newStepExecution())
		assert.NoError(t, err)
		_, err = always.Execute(context.Background(), newStepExecution())
		assert.Error(t, err)
	}
}

func TestRegisterGenericTasklets(t *testing.T) {
	registry := jsl.NewComponentRegistry()
	RegisterGenericTasklets(registry)
	assert.Equal(t, []string{"executionContextWriterTasklet", "loggingTasklet", "randomFailTasklet"}, registry.Refs(jsl.KindTasklet))

	built, err := registry.Build(jsl.KindTasklet, jsl.ComponentRef{Ref: "loggingTasklet", Properties: map[string]string{
		"message":    "step 1",
		"parameters": "date",
		"exitStatus": "ODD",
	}})
	require.NoError(t, err)
	exit, err := built.(port.Tasklet).Execute(context.Background(), newStepExecution())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatus("ODD"), exit)

	built, err = registry.Build(jsl.KindTasklet, jsl.ComponentRef{Ref: "randomFailTasklet", Properties: map[string]string{"failCount": "1"}})
	require.NoError(t, err)
	assert.Equal(t, "randomFailTasklet", built.(*RandomFailTasklet).id)
	_, err = built.(port.Tasklet).Execute(context.Background(), newStepExecution())
	assert.Error(t, err)

	built, err = registry.Build(jsl.KindTasklet, jsl.ComponentRef{Ref: "randomFailTasklet", Properties: map[string]string{"id": "conditionalJobStep1", "failCount": "1"}})
	require.NoError(t, err)
	_, err = built.(port.Tasklet).Execute(context.Background(), newStepExecution())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[conditionalJobStep1]")

	seeded := func() model.ExitStatus {
		built, err := registry.Build(jsl.KindTasklet, jsl.ComponentRef{Ref: "randomFailTasklet", Properties: map[string]string{"failRate": "0.5", "seed": "42"}})
		require.NoError(t, err)
		exit, _ := built.(port.Tasklet).Execute(context.Background(), newStepExecution())
		return exit
	}
	assert.Equal(t, seeded(), seeded(), "a seed pins the outcome")

	_, err = registry.Build(jsl.KindTasklet, jsl.ComponentRef{Ref: "randomFailTasklet", Properties: map[string]string{"failRate": "often"}})
	assert.Error(t, err)
}
