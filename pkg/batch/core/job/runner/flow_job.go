package runner

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/flow"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const moduleName = "job_runner"

// FlowJob is a port.Job that walks a flow.Definition.
type FlowJob struct {
	definition     *flow.Definition
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	required       []string
	incrementer    port.JobParametersIncrementer
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that FlowJob implements the port.Job interface.
var _ port.Job = (*FlowJob)(nil)

// FlowJobOption configures a FlowJob.
type FlowJobOption func(*FlowJob)

// WithJobListeners registers job execution listeners.
func WithJobListeners(listeners ...port.JobExecutionListener) FlowJobOption {
	return func(j *FlowJob) { j.jobListeners = append(j.jobListeners, listeners...) }
}

// WithRequiredParameters names parameters every submission must carry.
func WithRequiredParameters(names ...string) FlowJobOption {
	return func(j *FlowJob) { j.required = append(j.required, names...) }
}

// WithIncrementer sets the incrementer used by JobOperator.StartNextInstance.
func WithIncrementer(incrementer port.JobParametersIncrementer) FlowJobOption {
	return func(j *FlowJob) { j.incrementer = incrementer }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(recorder metrics.MetricRecorder) FlowJobOption {
	return func(j *FlowJob) { j.metricRecorder = recorder }
}

// WithTracer sets the tracer.
func WithTracer(tracer metrics.Tracer) FlowJobOption {
	return func(j *FlowJob) { j.tracer = tracer }
}

// NewFlowJob creates a FlowJob over definition.
func NewFlowJob(definition *flow.Definition, jobRepository repository.JobRepository, opts ...FlowJobOption) *FlowJob {
	j := &FlowJob{
		definition:     definition,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.definition.Name()
}

// Definition returns the job graph.
func (j *FlowJob) Definition() *flow.Definition {
	return j.definition
}

// Incrementer returns the job's parameters incrementer, or nil.
func (j *FlowJob) Incrementer() port.JobParametersIncrementer {
	return j.incrementer
}

// Validate validates the flow graph.
func (j *FlowJob) Validate() error {
	return j.definition.Validate()
}

// ValidateParameters checks that every required parameter is present.
func (j *FlowJob) ValidateParameters(params model.JobParameters) error {
	logger.Debugf("Job '%s': Validating JobParameters %s", j.JobName(), params.String())
	for _, name := range j.required {
		if params.Get(name) == nil {
			return exception.NewConfigurationError(moduleName, "job '%s' requires parameter '%s'", j.JobName(), name)
		}
	}
	return nil
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run walks the graph from the resume node (jobExecution.CurrentStepName) or the start
// node until a terminal state. Each node's exit status selects the first matching
// transition. A node without transitions ends the job with its own outcome; a node whose
// transitions all miss fails the job with exception.ErrFlowDeadEnd.
//
// The returned error is reserved for history-store failures.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.JobName(), jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	j.notifyBeforeJob(ctx, jobExecution)

	defer func() {
		j.notifyAfterJob(ctx, jobExecution)
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)
		logger.Infof("Job '%s' (Execution ID: %s) finished. Status: %s, ExitStatus: %s",
			j.JobName(), jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	current := j.definition.StartNode()
	if resume := jobExecution.CurrentStepName; resume != "" {
		if _, ok := j.definition.Node(resume); ok {
			logger.Infof("Job '%s' resumes at '%s'.", j.JobName(), resume)
			current = resume
		} else {
			logger.Warnf("Job '%s': resume node '%s' is not part of the flow, starting at '%s'.", j.JobName(), resume, current)
		}
	}

	var lastStep *model.StepExecution
	for {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Job '%s' interrupted before '%s': %v", j.JobName(), current, err)
			jobExecution.AddFailureException(err)
			jobExecution.MarkAsStopped()
			return nil
		}

		node, ok := j.definition.Node(current)
		if !ok {
			err := exception.NewConfigurationError(moduleName, "flow node '%s' not found in job '%s'", current, j.JobName())
			j.tracer.RecordError(ctx, moduleName, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}
		jobExecution.CurrentStepName = current

		var (
			exit    model.ExitStatus
			outcome model.JobStatus
			cause   error
		)
		if node.IsDecider() {
			decided, err := node.Decider.Decide(ctx, jobExecution, lastStep)
			if err != nil {
				err = exception.NewBatchError(moduleName, fmt.Sprintf("decider '%s' failed", current), err, false, false)
				logger.Errorf("Job '%s': %v", j.JobName(), err)
				j.tracer.RecordError(ctx, moduleName, err)
				jobExecution.MarkAsFailed(err)
				return nil
			}
			logger.Infof("Job '%s': Decider '%s' returned '%s'.", j.JobName(), current, decided)
			exit, outcome = decided, model.BatchStatusCompleted
		} else {
			se, err := j.executeStep(ctx, jobExecution, node.Step)
			if err != nil {
				jobExecution.MarkAsFailed(err)
				return err
			}
			lastStep = se
			exit, outcome = se.ExitStatus, se.Status
			if outcome == model.BatchStatusFailed {
				cause = fmt.Errorf("step '%s' failed", current)
			}
		}

		if outcome == model.BatchStatusStopped {
			logger.Infof("Job '%s': Step '%s' stopped. Stopping job.", j.JobName(), current)
			jobExecution.MarkAsStopped()
			return nil
		}

		if len(j.definition.Edges(current)) == 0 {
			if cause != nil {
				jobExecution.MarkAsFailed(cause)
			} else {
				jobExecution.MarkAsCompleted()
			}
			return nil
		}

		edge, ok := j.definition.Match(current, exit)
		if !ok {
			err := exception.NewBatchError(moduleName,
				fmt.Sprintf("no transition from '%s' matches exit status '%s'", current, exit), exception.ErrFlowDeadEnd, false, false)
			logger.Errorf("Job '%s': %v", j.JobName(), err)
			j.tracer.RecordError(ctx, moduleName, err)
			jobExecution.MarkAsFailed(err)
			return nil
		}
		logger.Debugf("Job '%s': following %s", j.JobName(), edge)

		switch {
		case edge.End:
			jobExecution.MarkAsCompleted()
			return nil
		case edge.Fail:
			err := fmt.Errorf("fail transition from '%s' on '%s'", current, exit)
			j.tracer.RecordError(ctx, moduleName, err)
			jobExecution.MarkAsFailed(err)
			return nil
		case edge.Stop:
			if edge.To != "" {
				jobExecution.CurrentStepName = edge.To
			}
			jobExecution.MarkAsStopped()
			return nil
		}

		current = edge.To
		jobExecution.CurrentStepName = current
		if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			logger.Errorf("Job '%s': Failed to record progress: %v", j.JobName(), err)
			jobExecution.MarkAsFailed(err)
			return err
		}
	}
}

// executeStep runs step, or replays a COMPLETED step restored from the previous
// execution. Only history-store errors are returned; step errors stay in the
// StepExecution.
func (j *FlowJob) executeStep(ctx context.Context, jobExecution *model.JobExecution, step port.Step) (*model.StepExecution, error) {
	name := step.StepName()
	if se, ok := jobExecution.FindStepExecution(name); ok && se.Restored && se.Status == model.BatchStatusCompleted {
		logger.Infof("Job '%s': Step '%s' completed in a previous execution, skipping.", j.JobName(), name)
		// a cycle back to this node runs it again
		se.Restored = false
		return se, nil
	}

	// copies made for a restart are already stored by the launcher
	se, ok := jobExecution.FindStepExecution(name)
	var saveErr error
	if ok && se.Status == model.BatchStatusStarting {
		logger.Infof("Job '%s': Restarting step '%s' from its last checkpoint.", j.JobName(), name)
		saveErr = j.jobRepository.UpdateStepExecution(ctx, se)
	} else {
		se = model.NewStepExecution(model.NewID(), jobExecution, name)
		jobExecution.AddStepExecution(se)
		saveErr = j.jobRepository.SaveStepExecution(ctx, se)
	}
	if saveErr != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to save StepExecution for '%s'", name), saveErr, false, false)
	}

	stepCtx := port.WithStepExecution(ctx, se)
	if err := step.Execute(stepCtx, jobExecution, se); err != nil {
		logger.Errorf("Job '%s': Step '%s' failed: %v", j.JobName(), name, err)
		j.tracer.RecordError(ctx, moduleName, err)
		if !se.Status.IsFinished() {
			se.MarkAsFailed(err)
		}
	} else if !se.Status.IsFinished() {
		se.MarkAsCompleted("")
	}

	if err := j.jobRepository.UpdateStepExecution(ctx, se); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to update StepExecution for '%s'", name), err, false, false)
	}
	return se, nil
}
