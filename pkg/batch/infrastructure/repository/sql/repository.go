// Package sql implements the history store on a gorm datasource. The tables are created
// by the framework migrations; parameters, failures and execution contexts are stored as
// JSON text.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const module = "SQLJobRepository"

// SQLJobRepository implements the repository.JobRepository interface.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the datasource holding the history tables (e.g., "metadata").
	dbName string
	// claimTTL lets a claim older than this be taken over. 0 keeps claims until released.
	claimTTL time.Duration

	mu       sync.Mutex
	renewers map[string]context.CancelFunc
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a new instance of SQLJobRepository.
//
// Parameters:
//
//	dbResolver: The database connection resolver.
//	dbName: The name of the datasource holding the history tables.
//
// Returns:
//
//	A new SQLJobRepository.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName, renewers: make(map[string]context.CancelFunc)}
}

// db returns the gorm handle for ctx. A gorm transaction carried by ctx is joined so
// history updates made inside a chunk commit or roll back with it.
func (r *SQLJobRepository) db(ctx context.Context) (*gorm.DB, database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, false, true)
	}
	if g, ok := gormadapter.GormDBFromContext(ctx); ok {
		return g.WithContext(ctx), conn, nil
	}
	return conn.GormDB().WithContext(ctx), conn, nil
}

// --- JobInstance implementation ---

func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	entity, err := fromDomainJobInstance(instance)
	if err != nil {
		return exception.NewBatchError(module, "failed to map JobInstance", err, false, false)
	}
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	if err := g.Create(entity).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err, false, !gormadapter.IsDuplicateKeyError(err))
	}
	return nil
}

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	var entity JobInstanceEntity
	if err := r.first(ctx, &entity, "id = ?", id); err != nil {
		return nil, r.notFound(err, repository.ErrJobInstanceNotFound, "JobInstance")
	}
	return toDomainJobInstance(&entity)
}

// FindJobInstanceByJobNameAndParameters looks the instance up by its parameters hash.
// Stored parameters may be masked, so the hash is the identity that is compared.
func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	var entity JobInstanceEntity
	if err := r.first(ctx, &entity, "job_name = ? AND parameters_hash = ?", jobName, params.Hash()); err != nil {
		return nil, r.notFound(err, repository.ErrJobInstanceNotFound, "JobInstance")
	}
	return toDomainJobInstance(&entity)
}

func (r *SQLJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := g.Where("job_name = ?", jobName).Order("create_time desc").Find(&entities).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobInstance{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to find JobInstances by job name", err, false, true)
	}
	out := make([]*model.JobInstance, 0, len(entities))
	for i := range entities {
		ji, err := toDomainJobInstance(&entities[i])
		if err != nil {
			return nil, exception.NewBatchError(module, "failed to map JobInstance", err, false, false)
		}
		out = append(out, ji)
	}
	return out, nil
}

func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := g.Model(&JobInstanceEntity{}).Where("job_name = ?", jobName).Count(&count).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return 0, nil
		}
		return 0, exception.NewBatchError(module, "failed to count JobInstances", err, false, true)
	}
	return int(count), nil
}

func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := g.Model(&JobInstanceEntity{}).Distinct().Order("job_name").Pluck("job_name", &names).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return []string{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to get job names", err, false, true)
	}
	return names, nil
}

// --- JobExecution implementation ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	jobExecution.LastUpdated = time.Now()
	entity, err := fromDomainJobExecution(jobExecution)
	if err != nil {
		return exception.NewBatchError(module, "failed to map JobExecution", err, false, false)
	}
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	if err := g.Create(entity).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, false, true)
	}
	return nil
}

// UpdateJobExecution writes the execution if its stored version still matches and
// increments the version.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	originalVersion := jobExecution.Version
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	entity, err := fromDomainJobExecution(jobExecution)
	if err != nil {
		jobExecution.Version = originalVersion
		return exception.NewBatchError(module, "failed to map JobExecution", err, false, false)
	}
	if err := r.updateVersioned(ctx, entity, entity.ID, originalVersion, "JobExecution"); err != nil {
		jobExecution.Version = originalVersion
		return err
	}
	return nil
}

// FindJobExecutionByID loads the execution and its step executions.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	var entity JobExecutionEntity
	if err := r.first(ctx, &entity, "id = ?", executionID); err != nil {
		return nil, r.notFound(err, repository.ErrJobExecutionNotFound, "JobExecution")
	}
	return r.loadJobExecution(ctx, &entity)
}

func (r *SQLJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	var entity JobExecutionEntity
	err = g.Where("job_instance_id = ?", jobInstanceID).Order("create_time desc").Order("restart_count desc").Take(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(module, "failed to find latest JobExecution", err, false, true)
	}
	return r.loadJobExecution(ctx, &entity)
}

func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	return r.findJobExecutions(ctx, "create_time asc", "job_instance_id = ?", jobInstance.ID)
}

func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	running := []string{
		string(model.BatchStatusStarting),
		string(model.BatchStatusStarted),
		string(model.BatchStatusStopping),
	}
	return r.findJobExecutions(ctx, "create_time asc", "job_name = ? AND status IN ?", jobName, running)
}

func (r *SQLJobRepository) findJobExecutions(ctx context.Context, order string, query string, args ...interface{}) ([]*model.JobExecution, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := g.Where(query, args...).Order(order).Find(&entities).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to find JobExecutions", err, false, true)
	}
	out := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		je, err := r.loadJobExecution(ctx, &entities[i])
		if err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, nil
}

func (r *SQLJobRepository) loadJobExecution(ctx context.Context, entity *JobExecutionEntity) (*model.JobExecution, error) {
	je, err := toDomainJobExecution(entity)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to map JobExecution", err, false, false)
	}
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		je.AddStepExecution(se)
	}
	return je, nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	stepExecution.LastUpdated = time.Now()
	entity, err := fromDomainStepExecution(stepExecution)
	if err != nil {
		return exception.NewBatchError(module, "failed to map StepExecution", err, false, false)
	}
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	if err := g.Create(entity).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, false, true)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	originalVersion := stepExecution.Version
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	entity, err := fromDomainStepExecution(stepExecution)
	if err != nil {
		stepExecution.Version = originalVersion
		return exception.NewBatchError(module, "failed to map StepExecution", err, false, false)
	}
	if err := r.updateVersioned(ctx, entity, entity.ID, originalVersion, "StepExecution"); err != nil {
		stepExecution.Version = originalVersion
		return err
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	var entity StepExecutionEntity
	if err := r.first(ctx, &entity, "id = ?", executionID); err != nil {
		return nil, r.notFound(err, repository.ErrStepExecutionNotFound, "StepExecution")
	}
	se, err := toDomainStepExecution(&entity)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to map StepExecution", err, false, false)
	}
	return se, nil
}

func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	g, conn, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := g.Where("job_execution_id = ?", jobExecutionID).Order("start_time asc").Order("id").Find(&entities).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.StepExecution{}, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to find StepExecutions by JobExecution ID: %s", jobExecutionID), err, false, true)
	}
	out := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		se, err := toDomainStepExecution(&entities[i])
		if err != nil {
			return nil, exception.NewBatchError(module, "failed to map StepExecution", err, false, false)
		}
		out = append(out, se)
	}
	return out, nil
}

// --- InstanceClaim implementation ---

// WithClaimTTL lets claims older than ttl be taken over, so a claim left by a crashed
// process does not block its instance forever. A held claim has its claimed_at refreshed
// every ttl/3 until it is released.
func (r *SQLJobRepository) WithClaimTTL(ttl time.Duration) *SQLJobRepository {
	r.claimTTL = ttl
	return r
}

// ClaimJobInstance inserts the claim row. The primary key on the instance ID turns a
// concurrent claim into exception.ErrJobInstanceClaimed.
func (r *SQLJobRepository) ClaimJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	err = g.Create(&JobClaimEntity{JobInstanceID: jobInstanceID, Owner: owner, ClaimedAt: time.Now()}).Error
	if err != nil && gormadapter.IsDuplicateKeyError(err) && r.claimTTL > 0 {
		expired := g.Where("job_instance_id = ? AND claimed_at < ?", jobInstanceID, time.Now().Add(-r.claimTTL)).Delete(&JobClaimEntity{})
		if expired.Error == nil && expired.RowsAffected > 0 {
			logger.Warnf("%s: Took over expired claim of JobInstance %s.", module, jobInstanceID)
			err = g.Create(&JobClaimEntity{JobInstanceID: jobInstanceID, Owner: owner, ClaimedAt: time.Now()}).Error
		}
	}
	if err != nil {
		if gormadapter.IsDuplicateKeyError(err) {
			return fmt.Errorf("job instance %s: %w", jobInstanceID, exception.ErrJobInstanceClaimed)
		}
		return exception.NewBatchError(module, fmt.Sprintf("failed to claim JobInstance (ID: %s)", jobInstanceID), err, false, true)
	}
	if r.claimTTL > 0 {
		r.stopRenewal(jobInstanceID)
		renewCtx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.renewers[jobInstanceID] = cancel
		r.mu.Unlock()
		go r.renewClaim(renewCtx, jobInstanceID, owner)
	}
	logger.Debugf("%s: JobInstance %s claimed by %s.", module, jobInstanceID, owner)
	return nil
}

func (r *SQLJobRepository) renewClaim(ctx context.Context, jobInstanceID, owner string) {
	ticker := time.NewTicker(r.claimTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g, _, err := r.db(ctx)
			if err != nil {
				logger.Warnf("%s: Failed to renew claim of JobInstance %s: %v", module, jobInstanceID, err)
				continue
			}
			res := g.Model(&JobClaimEntity{}).
				Where("job_instance_id = ? AND owner = ?", jobInstanceID, owner).
				Update("claimed_at", time.Now())
			if res.Error != nil {
				if ctx.Err() == nil {
					logger.Warnf("%s: Failed to renew claim of JobInstance %s: %v", module, jobInstanceID, res.Error)
				}
				continue
			}
			if res.RowsAffected == 0 {
				logger.Warnf("%s: Claim of JobInstance %s was lost.", module, jobInstanceID)
				return
			}
		}
	}
}

func (r *SQLJobRepository) stopRenewal(jobInstanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.renewers[jobInstanceID]; ok {
		cancel()
		delete(r.renewers, jobInstanceID)
	}
}

func (r *SQLJobRepository) ReleaseJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	r.stopRenewal(jobInstanceID)
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	if err := g.Where("job_instance_id = ? AND owner = ?", jobInstanceID, owner).Delete(&JobClaimEntity{}).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to release JobInstance (ID: %s)", jobInstanceID), err, false, true)
	}
	return nil
}

// Close stops all claim renewals. The datasource belongs to the resolver.
func (r *SQLJobRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.renewers {
		cancel()
		delete(r.renewers, id)
	}
	return nil
}

// --- helpers ---

func (r *SQLJobRepository) first(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	g, conn, err := r.db(ctx)
	if err != nil {
		return err
	}
	err = g.Where(query, args...).Take(dest).Error
	if err != nil && conn.IsTableNotExistError(err) {
		return gorm.ErrRecordNotFound
	}
	return err
}

func (r *SQLJobRepository) notFound(err error, sentinel error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	if exception.IsBatchError(err) {
		return err
	}
	return exception.NewBatchError(module, fmt.Sprintf("failed to find %s", what), err, false, true)
}

// updateVersioned saves every column of entity where the row still has version.
func (r *SQLJobRepository) updateVersioned(ctx context.Context, entity interface{}, id string, version int, what string) error {
	g, _, err := r.db(ctx)
	if err != nil {
		return err
	}
	res := g.Model(entity).Where("id = ? AND version = ?", id, version).Select("*").Updates(entity)
	if res.Error != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to update %s (ID: %s)", what, id), res.Error, false, true)
	}
	if res.RowsAffected == 0 {
		return exception.NewOptimisticLockingFailureException(module, fmt.Sprintf("%s (ID: %s) with version %d not found for update", what, id, version), nil)
	}
	return nil
}

// JobRepositoryParams defines the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository creates the SQL history store on batch.repository.db_ref.
func NewJobRepository(p JobRepositoryParams) repository.JobRepository {
	dbName := p.Cfg.Surfin.Batch.Repository.DBRef
	if dbName == "" {
		dbName = "metadata"
	}
	logger.Infof("Using SQL job repository on datasource '%s'.", dbName)
	return NewSQLJobRepository(p.DBResolver, dbName).WithClaimTTL(p.Cfg.Surfin.Batch.Repository.ClaimTTL)
}
