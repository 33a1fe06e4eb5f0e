package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// SimpleJobRunner moves a JobExecution to STARTED, runs the job and persists the final
// state.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobRunner creates a SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run executes job for jobExecution. A persistence failure while starting aborts the
// execution; everything else ends up in jobExecution.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, jobExecution *model.JobExecution) error {
	jobExecution.MarkAsStarted()
	if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
		jobExecution.MarkAsFailed(err)
		r.persistFinal(jobExecution)
		return err
	}

	runErr := job.Run(ctx, jobExecution)
	if runErr != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(runErr)
	} else if !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}
	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}

	if err := r.persistFinal(jobExecution); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// persistFinal stores the terminal state even when the run context is already cancelled.
func (r *SimpleJobRunner) persistFinal(jobExecution *model.JobExecution) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobRunner: Failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, err)
		return err
	}
	return nil
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
