package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/surfin-flow/pkg/batch/test"
)

// newMockedRepository returns a repository talking MySQL dialect to sqlmock.
func newMockedRepository(t *testing.T) (*SQLJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, sm, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	conn := gormadapter.NewGormDBConnection(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "metadata")
	resolver := &batchtest.MockDBConnectionResolver{}
	resolver.On("ResolveDBConnection", mock.Anything, "metadata").Return(conn, nil)
	t.Cleanup(func() {
		sm.ExpectClose()
		_ = sqlDB.Close()
	})
	return NewSQLJobRepository(resolver, "metadata"), sm
}

func TestUpdateJobExecution_VersionCheck(t *testing.T) {
	ctx := context.Background()
	execution := func() *model.JobExecution {
		je := model.NewJobExecution("inst-1", "job", model.NewJobParameters())
		je.Version = 3
		return je
	}

	t.Run("matching version", func(t *testing.T) {
		repo, sm := newMockedRepository(t)
		je := execution()
		sm.ExpectExec("UPDATE `batch_job_execution` SET .* WHERE \\(id = \\? AND version = \\?\\)").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateJobExecution(ctx, je))
		assert.Equal(t, 4, je.Version)
		assert.NoError(t, sm.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		repo, sm := newMockedRepository(t)
		je := execution()
		sm.ExpectExec("UPDATE `batch_job_execution`").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateJobExecution(ctx, je)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, 3, je.Version, "version is restored")
		assert.NoError(t, sm.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, sm := newMockedRepository(t)
		boom := errors.New("connection reset")
		je := execution()
		sm.ExpectExec("UPDATE `batch_job_execution`").WillReturnError(boom)

		err := repo.UpdateJobExecution(ctx, je)
		require.Error(t, err)
		assert.False(t, exception.IsOptimisticLockingFailure(err))
		assert.ErrorIs(t, err, boom)
		assert.True(t, exception.IsTemporary(err))
	})
}

func TestUpdateStepExecution_StaleVersion(t *testing.T) {
	repo, sm := newMockedRepository(t)
	je := model.NewJobExecution("inst-1", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "step")
	se.MarkAsStarted()
	sm.ExpectExec("UPDATE `batch_step_execution`").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStepExecution(context.Background(), se)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, se.Version)
	assert.NoError(t, sm.ExpectationsWereMet())
}
