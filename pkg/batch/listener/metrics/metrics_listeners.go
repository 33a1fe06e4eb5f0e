// Package metrics provides listeners exporting the number of job and step executions in
// progress as Prometheus gauges.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// Gauges holds the in-progress gauges shared by the listeners.
type Gauges struct {
	runningJobs  *prometheus.GaugeVec
	runningSteps *prometheus.GaugeVec
}

// NewGauges creates the gauges and registers them on registerer.
func NewGauges(registerer prometheus.Registerer) *Gauges {
	g := &Gauges{
		runningJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_job_running",
			Help: "Job executions currently running in this process.",
		}, []string{"job_name"}),
		runningSteps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_step_running",
			Help: "Step executions currently running in this process.",
		}, []string{"job_name", "step_name"}),
	}
	registerer.MustRegister(g.runningJobs, g.runningSteps)
	return g
}

// --- Job Execution Listener ---

type MetricsJobListener struct {
	gauges *Gauges
}

func NewMetricsJobListener(gauges *Gauges) *MetricsJobListener {
	return &MetricsJobListener{gauges: gauges}
}

func (l *MetricsJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.gauges.runningJobs.WithLabelValues(jobExecution.JobName).Inc()
}

func (l *MetricsJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.gauges.runningJobs.WithLabelValues(jobExecution.JobName).Dec()
}

var _ port.JobExecutionListener = (*MetricsJobListener)(nil)

// --- Step Execution Listener ---

type MetricsStepListener struct {
	gauges *Gauges
}

func NewMetricsStepListener(gauges *Gauges) *MetricsStepListener {
	return &MetricsStepListener{gauges: gauges}
}

func (l *MetricsStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.gauges.runningSteps.WithLabelValues(stepExecution.JobName(), stepExecution.StepName).Inc()
}

func (l *MetricsStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.gauges.runningSteps.WithLabelValues(stepExecution.JobName(), stepExecution.StepName).Dec()
}

var _ port.StepExecutionListener = (*MetricsStepListener)(nil)
