// Package step holds the lifecycle shared by tasklet and chunk steps: status
// transitions, listener notification, metrics and the step span.
package step

import (
	"context"
	"errors"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Lifecycle runs a step body between the STARTED and terminal transitions.
type Lifecycle struct {
	Name           string
	Listeners      []port.StepExecutionListener
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewLifecycle creates a Lifecycle with no-op metrics and tracing.
func NewLifecycle(name string) Lifecycle {
	return Lifecycle{
		Name:           name,
		MetricRecorder: metrics.NewNoOpMetricRecorder(),
		Tracer:         metrics.NewNoOpTracer(),
	}
}

// Body is the work of a step. The returned exit status is used on success; empty means
// COMPLETED.
type Body func(ctx context.Context) (model.ExitStatus, error)

// Run marks stepExecution STARTED, runs body inside the step span and settles the
// outcome: success is COMPLETED, cancellation of ctx is STOPPED, anything else FAILED.
// The returned error is body's error for FAILED and STOPPED outcomes.
func (l Lifecycle) Run(ctx context.Context, stepExecution *model.StepExecution, body Body) error {
	ctx, finishSpan := l.Tracer.StartStepSpan(ctx, stepExecution)
	defer finishSpan()

	stepExecution.MarkAsStarted()
	l.MetricRecorder.RecordStepStart(ctx, stepExecution)
	for _, listener := range l.Listeners {
		listener.BeforeStep(ctx, stepExecution)
	}

	exit, err := body(ctx)
	switch {
	case err == nil:
		stepExecution.MarkAsCompleted(exit)
	case isCancellation(ctx, err):
		logger.Warnf("Step '%s' stopped: %v", l.Name, err)
		stepExecution.AddFailureException(err)
		stepExecution.MarkAsStopped()
	default:
		l.Tracer.RecordError(ctx, l.Name, err)
		stepExecution.MarkAsFailed(err)
	}

	for _, listener := range l.Listeners {
		listener.AfterStep(ctx, stepExecution)
	}
	l.MetricRecorder.RecordStepEnd(ctx, stepExecution)
	return err
}

// isCancellation reports whether err comes from a cancelled ctx. A deadline is a
// failure, not a stop.
func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
