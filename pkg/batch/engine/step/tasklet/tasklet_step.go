package tasklet

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Closer is implemented by tasklets holding resources.
type Closer interface {
	Close(ctx context.Context) error
}

// TaskletStep runs a port.Tasklet once.
type TaskletStep struct {
	lifecycle step.Lifecycle
	tasklet   port.Tasklet
	txManager tx.TransactionManager
}

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithListeners registers step execution listeners.
func WithListeners(listeners ...port.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.lifecycle.Listeners = append(s.lifecycle.Listeners, listeners...) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(recorder metrics.MetricRecorder) Option {
	return func(s *TaskletStep) { s.lifecycle.MetricRecorder = recorder }
}

// WithTracer sets the tracer.
func WithTracer(tracer metrics.Tracer) Option {
	return func(s *TaskletStep) { s.lifecycle.Tracer = tracer }
}

// WithTransactionManager runs the tasklet inside a transaction committed on success.
func WithTransactionManager(m tx.TransactionManager) Option {
	return func(s *TaskletStep) { s.txManager = m }
}

// NewTaskletStep creates a new TaskletStep.
func NewTaskletStep(name string, tasklet port.Tasklet, opts ...Option) *TaskletStep {
	s := &TaskletStep{
		lifecycle: step.NewLifecycle(name),
		tasklet:   tasklet,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.lifecycle.Name
}

// Validate implements port.Validator.
func (s *TaskletStep) Validate() error {
	if port.IsNil(s.tasklet) {
		return exception.NewConfigurationError("tasklet_step", "step '%s' has no tasklet", s.StepName())
	}
	return nil
}

// Execute runs the tasklet. An error marks the step FAILED; otherwise the step is
// COMPLETED with the tasklet's exit status.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("TaskletStep '%s' executing.", s.StepName())
	err := s.lifecycle.Run(ctx, stepExecution, func(ctx context.Context) (model.ExitStatus, error) {
		return s.runTasklet(ctx, stepExecution)
	})
	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.StepName(), stepExecution.ExitStatus)
	return err
}

func (s *TaskletStep) runTasklet(ctx context.Context, stepExecution *model.StepExecution) (exit model.ExitStatus, err error) {
	if c, ok := s.tasklet.(Closer); ok {
		defer func() {
			if closeErr := c.Close(ctx); closeErr != nil {
				logger.Errorf("TaskletStep '%s': Failed to close Tasklet: %v", s.StepName(), closeErr)
				if err == nil {
					err = closeErr
				}
			}
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewBatchError("tasklet_step", fmt.Sprintf("tasklet of step '%s' panicked", s.StepName()), fmt.Errorf("%v", r), false, false)
		}
	}()

	if s.txManager == nil {
		return s.tasklet.Execute(ctx, stepExecution)
	}

	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("tasklet_step", "failed to begin transaction", err, false, true)
	}
	exit, err = s.tasklet.Execute(tx.WithTx(ctx, t), stepExecution)
	if err != nil {
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("TaskletStep '%s': Rollback failed: %v", s.StepName(), rbErr)
		}
		return exit, err
	}
	if err := s.txManager.Commit(t); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError("tasklet_step", "failed to commit transaction", err, false, false)
	}
	return exit, nil
}

// Verify that TaskletStep implements the port.Step interface.
var (
	_ port.Step      = (*TaskletStep)(nil)
	_ port.Validator = (*TaskletStep)(nil)
)
