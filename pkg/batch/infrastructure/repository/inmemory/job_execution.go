package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// SaveJobExecution stores a new JobExecution.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	r.stamp(jobExecution.ID)
	return nil
}

// UpdateJobExecution replaces the stored state if the version matches and increments it.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, jobExecution.Version), nil)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID returns a copy of the execution with its step executions.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.assemble(je), nil
}

func (r *InMemoryJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execs := r.executionsWhere(func(je *model.JobExecution) bool { return je.JobInstanceID == jobInstanceID })
	if len(execs) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return execs[len(execs)-1], nil
}

func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.executionsWhere(func(je *model.JobExecution) bool { return je.JobInstanceID == jobInstance.ID }), nil
}

func (r *InMemoryJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.executionsWhere(func(je *model.JobExecution) bool { return je.JobName == jobName && je.Status.IsRunning() }), nil
}

// executionsWhere returns copies of the matching executions, oldest first. Callers hold mu.
func (r *InMemoryJobRepository) executionsWhere(match func(*model.JobExecution) bool) []*model.JobExecution {
	out := make([]*model.JobExecution, 0)
	for _, je := range r.jobExecutions {
		if match(je) {
			out = append(out, r.assemble(je))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

// assemble copies je and attaches copies of its step executions. Callers hold mu.
func (r *InMemoryJobRepository) assemble(je *model.JobExecution) *model.JobExecution {
	out := copyJobExecution(je)
	steps := make([]*model.StepExecution, 0)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == je.ID {
			steps = append(steps, copyStepExecution(se))
		}
	}
	sort.Slice(steps, func(i, j int) bool { return r.seq[steps[i].ID] < r.seq[steps[j].ID] })
	for _, se := range steps {
		out.AddStepExecution(se)
	}
	return out
}
