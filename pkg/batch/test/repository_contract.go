package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// RunJobRepositoryContract checks the behavior every repository.JobRepository shares.
// newRepo must return an empty repository.
func RunJobRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.JobRepository) {
	ctx := context.Background()

	t.Run("instance identity", func(t *testing.T) {
		repo := newRepo(t)
		params := NewTestJobParameters(map[string]interface{}{"date": "2024-01-31", "run.id": int64(1)})
		ji := NewTestJobInstance("payJob", params)
		require.NoError(t, repo.SaveJobInstance(ctx, ji))

		same := NewTestJobParameters(map[string]interface{}{"run.id": 1, "date": "2024-01-31"})
		found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "payJob", same)
		require.NoError(t, err)
		assert.Equal(t, ji.ID, found.ID)
		assert.Equal(t, "2024-01-31", found.Parameters.Get("date"))

		_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "payJob", NewTestJobParameters(map[string]interface{}{"date": "2024-02-01"}))
		assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

		assert.Error(t, repo.SaveJobInstance(ctx, NewTestJobInstance("payJob", same)), "duplicate identity must be rejected")

		require.NoError(t, repo.SaveJobInstance(ctx, NewTestJobInstance("exportJob", params)))
		names, err := repo.GetJobNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"exportJob", "payJob"}, names)

		count, err := repo.GetJobInstanceCount(ctx, "payJob")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("execution round trip", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("payJob", NewTestJobParameters(map[string]interface{}{"date": "2024-01-31"}))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))

		je := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, je))
		se := NewTestStepExecution(je, "load")
		require.NoError(t, repo.SaveStepExecution(ctx, se))

		se.ReadCount, se.WriteCount, se.CommitCount = 10, 9, 1
		se.ExecutionContext.Put("reader.readCount", 10)
		require.NoError(t, repo.UpdateStepExecution(ctx, se))

		je.MarkAsStarted()
		je.CurrentStepName = "load"
		je.ExecutionContext.Put("total", "9")
		require.NoError(t, repo.UpdateJobExecution(ctx, je))

		loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusStarted, loaded.Status)
		assert.Equal(t, "load", loaded.CurrentStepName)
		assert.Equal(t, "9", loaded.ExecutionContext["total"])
		require.Len(t, loaded.StepExecutions, 1)
		step := loaded.StepExecutions[0]
		assert.Equal(t, 9, step.WriteCount)
		assert.Same(t, loaded, step.JobExecution)
		readCount, ok := step.ExecutionContext.GetInt("reader.readCount")
		assert.True(t, ok)
		assert.Equal(t, 10, readCount)

		latest, err := repo.FindLatestJobExecution(ctx, ji.ID)
		require.NoError(t, err)
		assert.Equal(t, je.ID, latest.ID)

		running, err := repo.FindRunningJobExecutions(ctx, "payJob")
		require.NoError(t, err)
		assert.Len(t, running, 1)

		end := time.Now()
		je.EndTime = &end
		je.MarkAsCompleted()
		require.NoError(t, repo.UpdateJobExecution(ctx, je))
		running, err = repo.FindRunningJobExecutions(ctx, "payJob")
		require.NoError(t, err)
		assert.Empty(t, running)

		_, err = repo.FindJobExecutionByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
		_, err = repo.FindStepExecutionByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	})

	t.Run("stale update is rejected", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("payJob", NewTestJobParameters(nil))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))
		je := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, je))

		stale, err := repo.FindJobExecutionByID(ctx, je.ID)
		require.NoError(t, err)
		require.NoError(t, repo.UpdateJobExecution(ctx, je))

		err = repo.UpdateJobExecution(ctx, stale)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, 0, stale.Version)
	})

	t.Run("executions in creation order", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("payJob", NewTestJobParameters(nil))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))

		first := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, first))
		second := model.NewRestartExecution(first, ji.Parameters)
		second.CreateTime = first.CreateTime.Add(time.Second)
		require.NoError(t, repo.SaveJobExecution(ctx, second))

		all, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, first.ID, all[0].ID)
		assert.Equal(t, second.ID, all[1].ID)

		latest, err := repo.FindLatestJobExecution(ctx, ji.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, 1, latest.RestartCount)
	})

	t.Run("claim", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ClaimJobInstance(ctx, "inst-1", "a"))
		err := repo.ClaimJobInstance(ctx, "inst-1", "b")
		assert.ErrorIs(t, err, exception.ErrJobInstanceClaimed)

		require.NoError(t, repo.ReleaseJobInstance(ctx, "inst-1", "b"))
		assert.ErrorIs(t, repo.ClaimJobInstance(ctx, "inst-1", "b"), exception.ErrJobInstanceClaimed)

		require.NoError(t, repo.ReleaseJobInstance(ctx, "inst-1", "a"))
		assert.NoError(t, repo.ClaimJobInstance(ctx, "inst-1", "b"))
		assert.NoError(t, repo.ReleaseJobInstance(ctx, "unknown", "b"))
	})
}
