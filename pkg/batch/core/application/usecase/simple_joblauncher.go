package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const launcherModule = "job_launcher"

// activeExecution is an execution running in this process.
type activeExecution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SimpleJobLauncher runs jobs of the registry in goroutines of this process. It claims
// the job instance for the whole execution, so identical run requests racing each other
// result in a single execution.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	jobRegistry   *support.JobRegistry
	jobRunner     port.JobRunner
	// owner identifies this launcher in instance claims.
	owner string

	mu     sync.Mutex
	active map[string]*activeExecution
	wg     sync.WaitGroup
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
//
// Parameters:
//
//	repo: The history store.
//	registry: The runnable jobs.
//	runner: Drives one execution to its terminal state.
//
// Returns:
//
//	A new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, registry *support.JobRegistry, runner port.JobRunner) *SimpleJobLauncher {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &SimpleJobLauncher{
		jobRepository: repo,
		jobRegistry:   registry,
		jobRunner:     runner,
		owner:         fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8]),
		active:        make(map[string]*activeExecution),
	}
}

// Launch implements JobLauncher.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	job, err := l.resolve(jobName, params)
	if err != nil {
		return nil, err
	}
	return l.start(ctx, job, params, nil, false)
}

// Run implements JobLauncher.
func (l *SimpleJobLauncher) Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	job, err := l.resolve(jobName, params)
	if err != nil {
		return nil, err
	}
	return l.start(ctx, job, params, nil, true)
}

// relaunch starts a new execution of an existing instance.
func (l *SimpleJobLauncher) relaunch(ctx context.Context, instance *model.JobInstance) (*model.JobExecution, error) {
	job, err := l.resolve(instance.JobName, instance.Parameters)
	if err != nil {
		return nil, err
	}
	return l.start(ctx, job, instance.Parameters, instance, false)
}

// resolve looks the job up and validates its flow and parameters.
func (l *SimpleJobLauncher) resolve(jobName string, params model.JobParameters) (port.Job, error) {
	job, err := l.jobRegistry.Get(jobName)
	if err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("cannot launch job '%s'", jobName), err, false, false)
	}
	if err := job.Validate(); err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("job '%s' is invalid", jobName), err, false, false)
	}
	if err := job.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
		return nil, exception.NewBatchError(launcherModule, "JobParameters validation error", err, false, false)
	}
	return job, nil
}

// start claims the instance, creates the execution and runs it. The claim is released
// when the execution ends or when the submission is rejected.
func (l *SimpleJobLauncher) start(ctx context.Context, job port.Job, params model.JobParameters, instance *model.JobInstance, wait bool) (*model.JobExecution, error) {
	jobName := job.JobName()
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, params.String())

	if instance == nil {
		var err error
		if instance, err = l.findOrCreateInstance(ctx, jobName, params); err != nil {
			return nil, err
		}
	}

	if err := l.jobRepository.ClaimJobInstance(ctx, instance.ID, l.owner); err != nil {
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("cannot claim JobInstance (ID: %s)", instance.ID), err, false, false)
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.jobRepository.ReleaseJobInstance(releaseCtx, instance.ID, l.owner); err != nil {
			logger.Warnf("Failed to release claim of JobInstance (ID: %s): %v", instance.ID, err)
		}
	}

	jobExecution, err := l.createExecution(ctx, instance, params)
	if err != nil {
		release()
		return nil, err
	}

	// a background execution outlives the request that submitted it
	parent := context.WithoutCancel(ctx)
	if wait {
		parent = ctx
	}
	runCtx, cancel := context.WithCancel(parent)
	jobExecution.CancelFunc = cancel
	done := l.register(jobExecution.ID, cancel)

	run := func() error {
		defer func() {
			l.unregister(jobExecution.ID)
			cancel()
			release()
			close(done)
		}()
		return l.jobRunner.Run(runCtx, job, jobExecution)
	}

	if wait {
		if err := run(); err != nil {
			return jobExecution, exception.NewBatchError(launcherModule, fmt.Sprintf("JobExecution (ID: %s) could not be recorded", jobExecution.ID), err, false, false)
		}
		return jobExecution, nil
	}

	snapshot := snapshotExecution(jobExecution)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := run(); err != nil {
			logger.Errorf("JobExecution (ID: %s) of Job '%s' could not be recorded: %v", jobExecution.ID, jobName, err)
		}
	}()
	return snapshot, nil
}

func (l *SimpleJobLauncher) findOrCreateInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	instance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err == nil {
		return instance, nil
	}
	if !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError(launcherModule, "failed to search for existing JobInstance", err, false, true)
	}

	instance = model.NewJobInstance(jobName, params)
	if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
		// a concurrent submission may have created it first
		existing, findErr := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
		if findErr == nil {
			return existing, nil
		}
		return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("failed to save new JobInstance for '%s'", jobName), err, false, true)
	}
	logger.Infof("Created new JobInstance (ID: %s, JobName: %s).", instance.ID, jobName)
	return instance, nil
}

// createExecution decides between a fresh execution and a restart. It runs while the
// instance is claimed.
func (l *SimpleJobLauncher) createExecution(ctx context.Context, instance *model.JobInstance, params model.JobParameters) (*model.JobExecution, error) {
	history, err := l.jobRepository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError(launcherModule, "failed to load the executions of JobInstance "+instance.ID, err, false, true)
	}

	for _, prev := range history {
		if prev.Status == model.BatchStatusCompleted {
			return nil, exception.NewBatchError(launcherModule,
				fmt.Sprintf("JobInstance (ID: %s) of Job '%s' already completed in execution %s", instance.ID, instance.JobName, prev.ID),
				exception.ErrJobInstanceAlreadyComplete, false, false)
		}
	}

	var jobExecution *model.JobExecution
	var latest *model.JobExecution
	if len(history) > 0 {
		latest = history[len(history)-1]
	}
	switch {
	case latest == nil || latest.Status == model.BatchStatusAbandoned:
		jobExecution = model.NewJobExecution(instance.ID, instance.JobName, params)
	case latest.Status.IsRunning():
		return nil, exception.NewBatchError(launcherModule,
			fmt.Sprintf("JobExecution (ID: %s, Status: %s) of JobInstance (ID: %s) is still running", latest.ID, latest.Status, instance.ID),
			exception.ErrJobExecutionAlreadyRunning, false, false)
	default:
		jobExecution = model.NewRestartExecution(latest, params)
		logger.Infof("Restarting JobInstance (ID: %s) after execution %s (%s). Resume at '%s', restart count %d.",
			instance.ID, latest.ID, latest.Status, jobExecution.CurrentStepName, jobExecution.RestartCount)
	}

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(launcherModule, "failed to save JobExecution initially", err, false, true)
	}
	for _, se := range jobExecution.StepExecutions {
		if err := l.jobRepository.SaveStepExecution(ctx, se); err != nil {
			return nil, exception.NewBatchError(launcherModule, fmt.Sprintf("failed to save restored StepExecution '%s'", se.StepName), err, false, true)
		}
	}
	logger.Debugf("Saved JobExecution (ID: %s, Status: %s).", jobExecution.ID, jobExecution.Status)
	return jobExecution, nil
}

func (l *SimpleJobLauncher) register(executionID string, cancel context.CancelFunc) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	done := make(chan struct{})
	l.active[executionID] = &activeExecution{cancel: cancel, done: done}
	return done
}

func (l *SimpleJobLauncher) unregister(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, executionID)
}

// stopLocal cancels the execution if it runs in this process and waits up to ctx for it
// to finish. It reports whether the execution was found.
func (l *SimpleJobLauncher) stopLocal(ctx context.Context, executionID string) bool {
	l.mu.Lock()
	a, ok := l.active[executionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel()
	select {
	case <-a.done:
	case <-ctx.Done():
	}
	return true
}

// Wait blocks until every execution started by Launch has finished or ctx is done.
func (l *SimpleJobLauncher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels all running executions and waits for them to record their state.
func (l *SimpleJobLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for id, a := range l.active {
		logger.Infof("Stopping JobExecution (ID: %s) for shutdown.", id)
		a.cancel()
	}
	l.mu.Unlock()
	return l.Wait(ctx)
}

// snapshotExecution copies je so callers can read it while the original runs.
func snapshotExecution(je *model.JobExecution) *model.JobExecution {
	out := *je
	out.CancelFunc = nil
	out.Parameters = je.Parameters.Copy()
	out.ExecutionContext = je.ExecutionContext.Copy()
	out.Failures = append(model.FailureList(nil), je.Failures...)
	out.StepExecutions = make([]*model.StepExecution, 0, len(je.StepExecutions))
	for _, se := range je.StepExecutions {
		c := *se
		c.ExecutionContext = se.ExecutionContext.Copy()
		c.Failures = append(model.FailureList(nil), se.Failures...)
		c.JobExecution = &out
		out.StepExecutions = append(out.StepExecutions, &c)
	}
	return &out
}
