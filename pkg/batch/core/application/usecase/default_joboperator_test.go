package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

func TestDefaultJobOperator_StartNextInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.operator.StartNextInstance(ctx, "simpleJob")
	require.NoError(t, err)
	f.waitForStatus(t, first.ID, model.BatchStatusCompleted)
	runID, ok := first.Parameters.GetInt("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), runID)

	second, err := f.operator.StartNextInstance(ctx, "simpleJob")
	require.NoError(t, err)
	f.waitForStatus(t, second.ID, model.BatchStatusCompleted)
	runID, _ = second.Parameters.GetInt("run.id")
	assert.Equal(t, int64(2), runID)
	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)

	instances, err := f.explorer.FindJobInstances(ctx, "simpleJob")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, second.JobInstanceID, instances[0].ID, "newest instance first")
}

func TestDefaultJobOperator_StartNextInstanceWithoutIncrementer(t *testing.T) {
	f := newFixture(t)

	_, err := f.operator.StartNextInstance(context.Background(), "flakyJob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestDefaultJobOperator_StopAndRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	je, err := f.operator.Start(ctx, "blockingJob", params("run", "stop"))
	require.NoError(t, err)
	f.awaitBlocked(t)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.operator.Stop(stopCtx, je.ID))
	stopped := f.waitForStatus(t, je.ID, model.BatchStatusStopped)
	require.Len(t, stopped.StepExecutions, 1)
	assert.Equal(t, model.BatchStatusStopped, stopped.StepExecutions[0].Status)

	// a finished execution cannot be stopped again
	err = f.operator.Stop(ctx, je.ID)
	assert.True(t, errors.Is(err, exception.ErrJobExecutionNotRunning))

	close(f.release)
	restarted, err := f.operator.Restart(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, je.JobInstanceID, restarted.JobInstanceID)
	assert.NotEqual(t, je.ID, restarted.ID)
	f.waitForStatus(t, restarted.ID, model.BatchStatusCompleted)

	// only the newest execution of an instance is restartable
	_, err = f.operator.Restart(ctx, je.ID)
	assert.Error(t, err)
}

func TestDefaultJobOperator_StopOrphanedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// an execution left STARTED by a process that no longer exists
	ji := model.NewJobInstance("blockingJob", params("run", "orphan"))
	require.NoError(t, f.repo.SaveJobInstance(ctx, ji))
	je := model.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
	je.MarkAsStarted()
	require.NoError(t, f.repo.SaveJobExecution(ctx, je))

	require.NoError(t, f.operator.Stop(ctx, je.ID))

	stored, err := f.explorer.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
	assert.NotEmpty(t, stored.Failures)
}

func TestDefaultJobOperator_Abandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.failLoad.Store(true)

	failed, err := f.launcher.Run(ctx, "flakyJob", params("date", "2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusFailed, failed.Status)

	abandoned, err := f.operator.Abandon(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, abandoned.Status)

	_, err = f.operator.Restart(ctx, failed.ID)
	assert.Error(t, err, "abandoned executions are not restartable")

	// relaunching the instance starts over from the first step
	f.failLoad.Store(false)
	fresh, err := f.launcher.Run(ctx, "flakyJob", params("date", "2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, fresh.Status)
	assert.Equal(t, 0, fresh.RestartCount)
	assert.Equal(t, int32(2), f.extractRuns.Load())
}

func TestDefaultJobOperator_AbandonCompletedFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	je, err := f.launcher.Run(ctx, "simpleJob", params("date", "2024-01-31"))
	require.NoError(t, err)

	_, err = f.operator.Abandon(ctx, je.ID)
	assert.Error(t, err)
}

func TestSimpleJobExplorer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	je, err := f.launcher.Run(ctx, "simpleJob", params("date", "2024-01-31"))
	require.NoError(t, err)

	last, err := f.explorer.GetLastJobExecution(ctx, je.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, je.ID, last.ID)

	instance, err := f.explorer.GetJobInstance(ctx, je.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, "simpleJob", instance.JobName)

	names, err := f.explorer.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "simpleJob")

	running, err := f.explorer.FindRunningJobExecutions(ctx, "simpleJob")
	require.NoError(t, err)
	assert.Empty(t, running)

	_, err = f.explorer.GetJobExecution(ctx, "missing")
	assert.Error(t, err)
}

func TestNewJobExecutionSummary(t *testing.T) {
	f := newFixture(t)

	je, err := f.launcher.Run(context.Background(), "flakyJob", params("date", "2024-04-01"))
	require.NoError(t, err)

	summary := usecase.NewJobExecutionSummary(je)
	assert.Equal(t, je.ID, summary.ID)
	assert.Equal(t, "flakyJob", summary.JobName)
	assert.Equal(t, string(model.BatchStatusCompleted), summary.Status)
	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "extract", summary.Steps[0].Name)
	assert.Equal(t, "load", summary.Steps[1].Name)
	assert.NotNil(t, summary.StartTime)
	assert.NotNil(t, summary.EndTime)
}
