package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

func TestSimpleJobLauncher_RunCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	je, err := f.launcher.Run(ctx, "simpleJob", params("date", "2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	require.Len(t, je.StepExecutions, 1)
	assert.Equal(t, model.BatchStatusCompleted, je.StepExecutions[0].Status)

	stored, err := f.explorer.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.NotNil(t, stored.EndTime)
}

func TestSimpleJobLauncher_RejectsCompletedInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.launcher.Run(ctx, "simpleJob", params("date", "2024-01-31"))
	require.NoError(t, err)

	_, err = f.launcher.Run(ctx, "simpleJob", params("date", "2024-01-31"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrJobInstanceAlreadyComplete))

	// other parameters identify another instance
	je, err := f.launcher.Run(ctx, "simpleJob", params("date", "2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
}

func TestSimpleJobLauncher_UnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.launcher.Launch(context.Background(), "noSuchJob", params())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrJobNotFound))
}

func TestSimpleJobLauncher_LaunchReturnsBeforeCompletion(t *testing.T) {
	f := newFixture(t)

	je, err := f.launcher.Launch(context.Background(), "blockingJob", params("run", "a"))
	require.NoError(t, err)
	assert.False(t, je.Status.IsFinished())
	f.awaitBlocked(t)

	close(f.release)
	f.waitForStatus(t, je.ID, model.BatchStatusCompleted)
}

func TestSimpleJobLauncher_ConcurrentLaunchesRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  []*model.JobExecution
		rejected []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			je, err := f.launcher.Launch(ctx, "blockingJob", params("run", "same"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected = append(rejected, err)
				return
			}
			started = append(started, je)
		}()
	}
	wg.Wait()

	require.Len(t, started, 1)
	require.Len(t, rejected, callers-1)
	for _, err := range rejected {
		assert.True(t,
			errors.Is(err, exception.ErrJobInstanceClaimed) || errors.Is(err, exception.ErrJobExecutionAlreadyRunning),
			"unexpected rejection: %v", err)
	}

	f.awaitBlocked(t)
	close(f.release)
	f.waitForStatus(t, started[0].ID, model.BatchStatusCompleted)
}

func TestSimpleJobLauncher_RestartSkipsCompletedSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.failLoad.Store(true)

	first, err := f.launcher.Run(ctx, "flakyJob", params("date", "2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, first.Status)
	assert.NotEmpty(t, first.Failures)
	assert.Equal(t, int32(1), f.extractRuns.Load())

	f.failLoad.Store(false)
	second, err := f.launcher.Run(ctx, "flakyJob", params("date", "2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID)
	assert.Equal(t, 1, second.RestartCount)
	assert.Equal(t, int32(1), f.extractRuns.Load(), "completed step must not run again")

	executions, err := f.explorer.GetJobExecutions(ctx, first.JobInstanceID)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, first.ID, executions[0].ID)
	assert.Equal(t, second.ID, executions[1].ID)
}

func TestSimpleJobLauncher_RestartLeavesRoutedAroundStepsBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.failReport.Store(true)

	first, err := f.launcher.Run(ctx, "routedJob", params("date", "2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusFailed, first.Status)
	assert.Equal(t, "report", first.CurrentStepName)

	f.failReport.Store(false)
	second, err := f.launcher.Run(ctx, "routedJob", params("date", "2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, second.Status)

	stored, err := f.explorer.GetJobExecution(ctx, second.ID)
	require.NoError(t, err)
	var names []string
	for _, se := range stored.StepExecutions {
		names = append(names, se.StepName)
		assert.True(t, se.Status.IsFinished(), "step %s left in %s", se.StepName, se.Status)
	}
	assert.Equal(t, []string{"report"}, names)
	report, ok := stored.FindStepExecution("report")
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusCompleted, report.Status)
}

func TestSimpleJobLauncher_ShutdownStopsRunningExecutions(t *testing.T) {
	f := newFixture(t)

	je, err := f.launcher.Launch(context.Background(), "blockingJob", params("run", "shutdown"))
	require.NoError(t, err)
	f.awaitBlocked(t)

	require.NoError(t, f.launcher.Shutdown(context.Background()))
	stored := f.waitForStatus(t, je.ID, model.BatchStatusStopped)
	assert.Equal(t, model.ExitStatusStopped, stored.ExitStatus)
}
