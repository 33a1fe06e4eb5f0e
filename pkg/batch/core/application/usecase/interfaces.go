package usecase

import (
	"context"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// JobLauncher submits run requests for registered jobs.
type JobLauncher interface {
	// Launch starts jobName with params in the background and returns a snapshot of the
	// new execution in STARTING state. Only configuration errors, submission conflicts
	// and history-store failures are returned; the job's own outcome is recorded in the
	// execution.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// Run is the synchronous variant of Launch. It returns the execution in its terminal
	// state.
	Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator controls jobs by name and executions by ID.
type JobOperator interface {
	// Start launches jobName with params.
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// StartNextInstance launches jobName with the parameters its incrementer derives from
	// the newest instance.
	StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error)

	// Stop cancels a running execution. The execution ends as STOPPED and can be restarted.
	Stop(ctx context.Context, executionID string) error

	// Restart launches a new execution for the instance of a FAILED or STOPPED execution.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)

	// Abandon marks a finished, unsuccessful execution as never to be restarted.
	Abandon(ctx context.Context, executionID string) (*model.JobExecution, error)
}

// JobExplorer reads the execution history.
type JobExplorer interface {
	// GetJobExecution returns the execution with its step executions.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions returns the executions of an instance, oldest first.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)

	// GetLastJobExecution returns the newest execution of an instance.
	GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error)

	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)

	// FindJobInstances returns the instances of jobName, newest first.
	FindJobInstances(ctx context.Context, jobName string) ([]*model.JobInstance, error)

	// FindRunningJobExecutions returns the unfinished executions of jobName.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)

	// GetJobNames returns the names of all jobs that have an instance.
	GetJobNames(ctx context.Context) ([]string, error)
}
