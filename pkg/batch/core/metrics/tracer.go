package metrics

import (
	"context"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// Tracer starts spans around job and step executions.
type Tracer interface {
	// StartJobSpan returns a context carrying the job span and a function ending it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan returns a context carrying a child span of the job span.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError attaches err to the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds a named event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error)                  {}
func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}
