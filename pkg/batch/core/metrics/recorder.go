// Package metrics defines the engine's metric and tracing abstractions. Backends live in
// infrastructure/metrics; the no-op implementations here are the fallback.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// MetricRecorder records batch execution metrics.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the terminal status and duration of an execution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead, RecordItemWrite and RecordItemFilter add count items for stepName.
	RecordItemRead(ctx context.Context, stepName string, count int)
	RecordItemWrite(ctx context.Context, stepName string, count int)
	RecordItemFilter(ctx context.Context, stepName string, count int)
	// RecordItemSkip counts an item excluded from its chunk; reason is the error module.
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	RecordChunkCommit(ctx context.Context, stepName string, count int)
	RecordChunkRollback(ctx context.Context, stepName string)

	// RecordDuration records an arbitrary timed operation.
	//
	// tags: additional labels, e.g. {"datasource": "workload"}.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// NoOpMetricRecorder discards everything.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() *NoOpMetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)   {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)     {}
func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)   {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, string, int)           {}
func (r *NoOpMetricRecorder) RecordItemWrite(context.Context, string, int)          {}
func (r *NoOpMetricRecorder) RecordItemFilter(context.Context, string, int)         {}
func (r *NoOpMetricRecorder) RecordItemSkip(context.Context, string, string)        {}
func (r *NoOpMetricRecorder) RecordItemRetry(context.Context, string, string)       {}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int)        {}
func (r *NoOpMetricRecorder) RecordChunkRollback(context.Context, string)           {}
func (r *NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}
