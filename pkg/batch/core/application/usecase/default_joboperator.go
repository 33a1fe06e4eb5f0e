package usecase

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const operatorModule = "job_operator"

// incrementable is implemented by jobs that can derive the parameters of their next
// instance.
type incrementable interface {
	Incrementer() port.JobParametersIncrementer
}

// DefaultJobOperator is the default implementation of the JobOperator interface.
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	jobRegistry   *support.JobRegistry
	jobLauncher   *SimpleJobLauncher
}

// Verify that DefaultJobOperator implements the JobOperator interface.
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new instance of DefaultJobOperator.
func NewDefaultJobOperator(jobRepository repository.JobRepository, jobRegistry *support.JobRegistry, jobLauncher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobRegistry:   jobRegistry,
		jobLauncher:   jobLauncher,
	}
}

// Start launches jobName with params.
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	return o.jobLauncher.Launch(ctx, jobName, params)
}

// StartNextInstance launches jobName with the parameters its incrementer derives from
// the newest instance, or from empty parameters for the first one.
func (o *DefaultJobOperator) StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error) {
	job, err := o.jobRegistry.Get(jobName)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("cannot start next instance of '%s'", jobName), err, false, false)
	}
	inc, ok := job.(incrementable)
	if !ok || port.IsNil(inc.Incrementer()) {
		return nil, exception.NewConfigurationError(operatorModule, "job '%s' has no JobParametersIncrementer", jobName)
	}

	last := model.NewJobParameters()
	instances, err := o.jobRepository.FindJobInstancesByJobName(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("failed to load instances of '%s'", jobName), err, false, true)
	}
	if len(instances) > 0 {
		last = instances[0].Parameters
	}
	next := inc.Incrementer().GetNext(last)
	logger.Infof("JobOperator: Next parameters of '%s': %s", jobName, next.String())
	return o.jobLauncher.Launch(ctx, jobName, next)
}

// Stop cancels the execution when it runs in this process. A running execution without
// a live owner, left behind by a crashed process, is marked STOPPED in the history so its
// instance can be restarted.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	if o.jobLauncher.stopLocal(ctx, executionID) {
		logger.Infof("JobOperator: Stop requested for JobExecution (ID: %s).", executionID)
		return nil
	}

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}
	if !jobExecution.Status.IsRunning() {
		return exception.NewBatchError(operatorModule,
			fmt.Sprintf("JobExecution (ID: %s) is %s", executionID, jobExecution.Status), exception.ErrJobExecutionNotRunning, false, false)
	}
	jobExecution.AddFailureException(errors.New("stopped by operator without a running owner"))
	jobExecution.MarkAsStopped()
	for _, se := range jobExecution.StepExecutions {
		if se.Status.IsRunning() {
			se.MarkAsStopped()
			if err := o.jobRepository.UpdateStepExecution(ctx, se); err != nil {
				return exception.NewBatchError(operatorModule, fmt.Sprintf("failed to stop StepExecution '%s'", se.StepName), err, false, true)
			}
		}
	}
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError(operatorModule, fmt.Sprintf("failed to stop JobExecution (ID: %s)", executionID), err, false, true)
	}
	logger.Warnf("JobOperator: JobExecution (ID: %s) had no running owner and was marked STOPPED.", executionID)
	return nil
}

// Restart launches a new execution for the instance of a FAILED or STOPPED execution.
// Only the newest execution of an instance can be restarted.
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	prev, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}
	if prev.Status != model.BatchStatusFailed && prev.Status != model.BatchStatusStopped {
		return nil, exception.NewBatchErrorf(operatorModule, "JobExecution (ID: %s) is not restartable (status %s)", executionID, prev.Status)
	}
	latest, err := o.jobRepository.FindLatestJobExecution(ctx, prev.JobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, "failed to load latest JobExecution", err, false, true)
	}
	if latest.ID != prev.ID {
		return nil, exception.NewBatchErrorf(operatorModule, "JobExecution (ID: %s) was superseded by %s", executionID, latest.ID)
	}
	instance, err := o.jobRepository.FindJobInstanceByID(ctx, prev.JobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("failed to load JobInstance (ID: %s)", prev.JobInstanceID), err, false, false)
	}

	next, err := o.jobLauncher.relaunch(ctx, instance)
	if err != nil {
		return nil, err
	}
	logger.Infof("JobOperator: Restarted Job '%s' (Execution ID: %s) as %s.", prev.JobName, executionID, next.ID)
	return next, nil
}

// Abandon marks a FAILED or STOPPED execution ABANDONED. The next launch of its instance
// starts from the entry node.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}
	if jobExecution.Status != model.BatchStatusFailed && jobExecution.Status != model.BatchStatusStopped {
		return nil, exception.NewBatchErrorf(operatorModule, "JobExecution (ID: %s) cannot be abandoned (status %s)", executionID, jobExecution.Status)
	}
	jobExecution.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(operatorModule, fmt.Sprintf("failed to abandon JobExecution (ID: %s)", executionID), err, false, true)
	}
	logger.Infof("JobOperator: JobExecution (ID: %s) abandoned.", executionID)
	return jobExecution, nil
}
