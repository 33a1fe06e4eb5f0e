// Package tracing provides listeners that annotate the active job and step spans with
// execution milestones.
package tracing

import (
	"context"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
)

// TracingJobListener adds job lifecycle events to the job span.
type TracingJobListener struct {
	tracer metrics.Tracer
}

func NewTracingJobListener(tracer metrics.Tracer) *TracingJobListener {
	return &TracingJobListener{tracer: tracer}
}

func (l *TracingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, "job.started", map[string]interface{}{
		"batch.job.parameters":    jobExecution.Parameters.String(),
		"batch.job.resume_node":   jobExecution.CurrentStepName,
		"batch.job.restart_count": jobExecution.RestartCount,
	})
}

func (l *TracingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, "job.finished", map[string]interface{}{
		"batch.status":      jobExecution.Status.String(),
		"batch.exit_status": jobExecution.ExitStatus.String(),
		"batch.last_node":   jobExecution.CurrentStepName,
		"batch.failures":    len(jobExecution.Failures),
	})
}

var _ port.JobExecutionListener = (*TracingJobListener)(nil)

// TracingStepListener adds step and chunk events to the step span.
type TracingStepListener struct {
	tracer metrics.Tracer
}

func NewTracingStepListener(tracer metrics.Tracer) *TracingStepListener {
	return &TracingStepListener{tracer: tracer}
}

func (l *TracingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "step.started", map[string]interface{}{
		"batch.step.name":     stepExecution.StepName,
		"batch.step.restored": stepExecution.Restored,
	})
}

func (l *TracingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "step.finished", map[string]interface{}{
		"batch.status":      stepExecution.Status.String(),
		"batch.exit_status": stepExecution.ExitStatus.String(),
	})
}

func (l *TracingStepListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {}

func (l *TracingStepListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "chunk.finished", map[string]interface{}{
		"batch.step.commit_count":   stepExecution.CommitCount,
		"batch.step.rollback_count": stepExecution.RollbackCount,
		"batch.step.read_count":     stepExecution.ReadCount,
	})
}

func (l *TracingStepListener) OnRetry(ctx context.Context, attempt int, err error) {
	l.tracer.RecordEvent(ctx, "retry", map[string]interface{}{
		"batch.retry.attempt": attempt,
		"batch.retry.error":   err.Error(),
	})
}

var (
	_ port.StepExecutionListener = (*TracingStepListener)(nil)
	_ port.ChunkListener         = (*TracingStepListener)(nil)
	_ port.RetryListener         = (*TracingStepListener)(nil)
)
