// Package metrics provides the Prometheus and OpenTelemetry backends of the engine's
// MetricRecorder and Tracer.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// NewRegistry creates the registry served on /metrics, with the Go runtime and process
// collectors registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	jobDurationSeconds  *prometheus.HistogramVec
	jobStatusCounter    *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	itemCounter         *prometheus.CounterVec
	itemSkipCounter     *prometheus.CounterVec
	itemRetryCounter    *prometheus.CounterVec
	chunkCounter        *prometheus.CounterVec
	operationSeconds    *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder and registers its collectors.
func NewPrometheusRecorder(registerer prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by final status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by final status.",
		}, []string{"job_name", "step_name", "status"}),
		itemCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_items_total",
			Help: "Items handled by step, by operation (read, write, filter).",
		}, []string{"job_name", "step_name", "operation"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items excluded from their chunk, by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total retried attempts by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		chunkCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_chunk_total",
			Help: "Chunk transactions by step and outcome (commit, rollback).",
		}, []string{"job_name", "step_name", "outcome"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	registerer.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.itemCounter,
		r.itemSkipCounter,
		r.itemRetryCounter,
		r.chunkCounter,
		r.operationSeconds,
	)
	return r
}

// jobNameOf returns the job name of the step running in ctx.
func jobNameOf(ctx context.Context) string {
	if se := port.StepExecutionFromContext(ctx); se != nil {
		return se.JobName()
	}
	return "unknown"
}

// RecordJobStart does nothing; executions are counted when they end.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the end of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(
		execution.JobName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart does nothing; steps are counted when they end.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
}

// RecordStepEnd records the end of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := execution.JobName()
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	r.stepDurationSeconds.WithLabelValues(
		jobName,
		execution.StepName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemCounter.WithLabelValues(jobNameOf(ctx), stepName, "read").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemCounter.WithLabelValues(jobNameOf(ctx), stepName, "write").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.itemCounter.WithLabelValues(jobNameOf(ctx), stepName, "filter").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(jobNameOf(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(jobNameOf(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCounter.WithLabelValues(jobNameOf(ctx), stepName, "commit").Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunkCounter.WithLabelValues(jobNameOf(ctx), stepName, "rollback").Inc()
}

// RecordDuration observes duration under the operation label name. Tags are not
// exported to keep the label set bounded.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
