package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
	batchtest "github.com/tigerroll/surfin-flow/pkg/batch/test"
)

func TestSQLJobRepository_Contract(t *testing.T) {
	batchtest.RunJobRepositoryContract(t, func(t *testing.T) repository.JobRepository {
		return NewSQLJobRepository(batchtest.NewMigratedSQLiteResolver(t, "metadata"), "metadata")
	})
}

func TestSQLJobRepository_JoinsContextTransaction(t *testing.T) {
	ctx := context.Background()
	resolver := batchtest.NewMigratedSQLiteResolver(t, "metadata")
	repo := NewSQLJobRepository(resolver, "metadata")
	txManager := gormadapter.NewGormTransactionManager(resolver, "metadata")

	ji := batchtest.NewTestJobInstance("job", batchtest.NewTestJobParameters(nil))
	t1, err := txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(tx.WithTx(ctx, t1), ji))
	require.NoError(t, txManager.Rollback(t1))

	_, err = repo.FindJobInstanceByID(ctx, ji.ID)
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestSQLJobRepository_MasksSensitiveParameters(t *testing.T) {
	serialization.SetMaskedParameterKeys([]string{"password"})
	t.Cleanup(func() { serialization.SetMaskedParameterKeys(nil) })

	ctx := context.Background()
	repo := NewSQLJobRepository(batchtest.NewMigratedSQLiteResolver(t, "metadata"), "metadata")
	params := batchtest.NewTestJobParameters(map[string]interface{}{"user": "batch", "password": "secret"})
	ji := batchtest.NewTestJobInstance("job", params)
	require.NoError(t, repo.SaveJobInstance(ctx, ji))

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "job", params)
	require.NoError(t, err)
	assert.Equal(t, "batch", found.Parameters.Get("user"))
	assert.NotEqual(t, "secret", found.Parameters.Get("password"))
}

func TestSQLJobRepository_ExpiredClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	resolver := batchtest.NewMigratedSQLiteResolver(t, "metadata")
	repo := NewSQLJobRepository(resolver, "metadata").WithClaimTTL(time.Minute)

	old := &JobClaimEntity{JobInstanceID: "inst-1", Owner: "crashed", ClaimedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, batchtest.MustConnection(t, resolver, "metadata").GormDB().Create(old).Error)

	require.NoError(t, repo.ClaimJobInstance(ctx, "inst-1", "launcher-a"))
	assert.ErrorIs(t, repo.ClaimJobInstance(ctx, "inst-1", "launcher-b"), exception.ErrJobInstanceClaimed)
}

func TestSQLJobRepository_HeldClaimIsRenewed(t *testing.T) {
	ctx := context.Background()
	resolver := batchtest.NewMigratedSQLiteResolver(t, "metadata")
	repo := NewSQLJobRepository(resolver, "metadata").WithClaimTTL(300 * time.Millisecond)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.ClaimJobInstance(ctx, "inst-1", "launcher-a"))
	time.Sleep(time.Second)

	assert.ErrorIs(t, repo.ClaimJobInstance(ctx, "inst-1", "launcher-b"), exception.ErrJobInstanceClaimed)

	var claim JobClaimEntity
	require.NoError(t, batchtest.MustConnection(t, resolver, "metadata").GormDB().Take(&claim, "job_instance_id = ?", "inst-1").Error)
	assert.Equal(t, "launcher-a", claim.Owner)
	assert.WithinDuration(t, time.Now(), claim.ClaimedAt, 300*time.Millisecond)

	require.NoError(t, repo.ReleaseJobInstance(ctx, "inst-1", "launcher-a"))
	repo.mu.Lock()
	assert.Empty(t, repo.renewers)
	repo.mu.Unlock()
	require.NoError(t, repo.ClaimJobInstance(ctx, "inst-1", "launcher-b"))
}
