package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
)

// OTelRecorder records the engine's metrics as OpenTelemetry instruments. It exports
// through the meter provider's OTLP reader.
type OTelRecorder struct {
	jobs          metric.Int64Counter
	jobDuration   metric.Float64Histogram
	steps         metric.Int64Counter
	stepDuration  metric.Float64Histogram
	items         metric.Int64Counter
	skips         metric.Int64Counter
	retries       metric.Int64Counter
	chunks        metric.Int64Counter
	operationTime metric.Float64Histogram
}

// NewOTelRecorder creates the instruments on meter.
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	r := &OTelRecorder{}
	var err error
	if r.jobs, err = meter.Int64Counter("batch.job.executions", metric.WithDescription("Finished job executions.")); err != nil {
		return nil, err
	}
	if r.jobDuration, err = meter.Float64Histogram("batch.job.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.steps, err = meter.Int64Counter("batch.step.executions", metric.WithDescription("Finished step executions.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram("batch.step.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.items, err = meter.Int64Counter("batch.step.items"); err != nil {
		return nil, err
	}
	if r.skips, err = meter.Int64Counter("batch.item.skips"); err != nil {
		return nil, err
	}
	if r.retries, err = meter.Int64Counter("batch.item.retries"); err != nil {
		return nil, err
	}
	if r.chunks, err = meter.Int64Counter("batch.chunks"); err != nil {
		return nil, err
	}
	if r.operationTime, err = meter.Float64Histogram("batch.operation.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameOf(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (r *OTelRecorder) RecordJobStart(context.Context, *model.JobExecution) {}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordStepStart(context.Context, *model.StepExecution) {}

func (r *OTelRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName()),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.steps.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "read")))
}

func (r *OTelRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "write")))
}

func (r *OTelRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "filter")))
}

func (r *OTelRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.skips.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OTelRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.retries.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OTelRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunks.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("outcome", "commit")))
}

func (r *OTelRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunks.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("outcome", "rollback")))
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
