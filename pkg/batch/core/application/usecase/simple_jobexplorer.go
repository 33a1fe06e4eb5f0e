package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const explorerModule = "job_explorer"

// SimpleJobExplorer is a simple implementation of the JobExplorer interface.
// It queries batch metadata using a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	logger.Debugf("Retrieved JobExecution (ID: %s) from JobRepository.", executionID)
	return jobExecution, nil
}

// GetJobExecutions retrieves all JobExecutions associated with the specified JobInstance.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	instance, err := e.GetJobInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	executions, err := e.jobRepository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve JobExecutions of JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return executions, nil
}

// GetLastJobExecution retrieves the latest JobExecution for a given JobInstance.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindLatestJobExecution(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve latest JobExecution of JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobExecution, nil
}

// GetJobInstance retrieves a JobInstance by its ID.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	instance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return instance, nil
}

// FindJobInstances returns the instances of jobName, newest first.
func (e *SimpleJobExplorer) FindJobInstances(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	instances, err := e.jobRepository.FindJobInstancesByJobName(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve JobInstances of '%s'", jobName), err, false, false)
	}
	return instances, nil
}

// FindRunningJobExecutions returns the unfinished executions of jobName.
func (e *SimpleJobExplorer) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	executions, err := e.jobRepository.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, fmt.Sprintf("failed to retrieve running JobExecutions of '%s'", jobName), err, false, false)
	}
	return executions, nil
}

// GetJobNames retrieves all job names recorded in the history.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := e.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError(explorerModule, "failed to retrieve job names", err, false, false)
	}
	return names, nil
}
