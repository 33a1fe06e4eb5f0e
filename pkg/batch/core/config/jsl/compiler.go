package jsl

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/flow"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/skip"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const compilerModule = "jsl_compiler"

// Compiler turns parsed job definitions into runnable jobs.
type Compiler struct {
	Config        *config.Config
	Components    *ComponentRegistry
	JobRepository repository.JobRepository
	// TxManagers resolves chunk and tasklet datasources. Required only by definitions
	// naming a datasource.
	TxManagers     tx.TransactionManagerFactory
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	// JobListeners and StepListeners are attached to every compiled job and step.
	JobListeners  []port.JobExecutionListener
	StepListeners []port.StepExecutionListener
}

// Compile builds and validates the job. Any problem is a configuration error.
func (c *Compiler) Compile(job Job) (*runner.FlowJob, error) {
	def := flow.NewDefinition(job.Name)
	for _, n := range job.Nodes {
		switch {
		case n.Decision != nil:
			d, err := c.buildDecider(n)
			if err != nil {
				return nil, err
			}
			def.AddDecider(d)
		case n.Tasklet != nil:
			s, err := c.buildTaskletStep(n)
			if err != nil {
				return nil, err
			}
			def.AddStep(s)
		case n.Chunk != nil:
			s, err := c.buildChunkStep(n)
			if err != nil {
				return nil, err
			}
			def.AddStep(s)
		default:
			return nil, exception.NewConfigurationError(compilerModule, "job '%s': node '%s' has no body", job.Name, n.ID)
		}
	}
	if job.Start != "" {
		def.Start(job.Start)
	}
	for _, n := range job.Nodes {
		if n.Next != "" {
			def.Next(n.ID, n.Next)
		}
		for _, t := range n.Transitions {
			def.AddEdge(flow.Edge{From: n.ID, On: t.On, To: t.To, End: t.End, Fail: t.Fail, Stop: t.Stop})
		}
	}

	opts := []runner.FlowJobOption{
		runner.WithRequiredParameters(job.RequiredParameters...),
	}
	if c.MetricRecorder != nil {
		opts = append(opts, runner.WithMetricRecorder(c.MetricRecorder))
	}
	if c.Tracer != nil {
		opts = append(opts, runner.WithTracer(c.Tracer))
	}
	listeners := append([]port.JobExecutionListener(nil), c.JobListeners...)
	for _, ref := range job.Listeners {
		built, err := c.Components.Build(KindJobListener, ref)
		if err != nil {
			return nil, err
		}
		l, ok := built.(port.JobExecutionListener)
		if !ok {
			return nil, typeError(job.Name, ref.Ref, "JobExecutionListener", built)
		}
		listeners = append(listeners, l)
	}
	if len(listeners) > 0 {
		opts = append(opts, runner.WithJobListeners(listeners...))
	}
	if job.Incrementer != nil {
		built, err := c.Components.Build(KindIncrementer, *job.Incrementer)
		if err != nil {
			return nil, err
		}
		inc, ok := built.(port.JobParametersIncrementer)
		if !ok {
			return nil, typeError(job.Name, job.Incrementer.Ref, "JobParametersIncrementer", built)
		}
		opts = append(opts, runner.WithIncrementer(inc))
	}

	fj := runner.NewFlowJob(def, c.JobRepository, opts...)
	if err := fj.Validate(); err != nil {
		return nil, err
	}
	logger.Debugf("Compiled job '%s' with %d nodes.", job.Name, len(job.Nodes))
	return fj, nil
}

// CompileAll compiles every job, stopping at the first failure.
func (c *Compiler) CompileAll(jobs []Job) ([]*runner.FlowJob, error) {
	out := make([]*runner.FlowJob, 0, len(jobs))
	for _, job := range jobs {
		fj, err := c.Compile(job)
		if err != nil {
			return nil, err
		}
		out = append(out, fj)
	}
	return out, nil
}

func (c *Compiler) buildDecider(n Node) (port.Decider, error) {
	built, err := c.Components.Build(KindDecider, *n.Decision)
	if err != nil {
		return nil, err
	}
	d, ok := built.(port.Decider)
	if !ok {
		return nil, typeError(n.ID, n.Decision.Ref, "Decider", built)
	}
	return &namedDecider{name: n.ID, Decider: d}, nil
}

func (c *Compiler) buildTaskletStep(n Node) (port.Step, error) {
	built, err := c.Components.Build(KindTasklet, *n.Tasklet)
	if err != nil {
		return nil, err
	}
	t, ok := built.(port.Tasklet)
	if !ok {
		return nil, typeError(n.ID, n.Tasklet.Ref, "Tasklet", built)
	}
	stepListeners, _, err := c.stepListeners(n)
	if err != nil {
		return nil, err
	}
	opts := []tasklet.Option{tasklet.WithListeners(stepListeners...)}
	if c.MetricRecorder != nil {
		opts = append(opts, tasklet.WithMetricRecorder(c.MetricRecorder))
	}
	if c.Tracer != nil {
		opts = append(opts, tasklet.WithTracer(c.Tracer))
	}
	if n.Datasource != "" {
		m, err := c.txManager(n.ID, n.Datasource)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tasklet.WithTransactionManager(m))
	}
	return tasklet.NewTaskletStep(n.ID, t, opts...), nil
}

func (c *Compiler) buildChunkStep(n Node) (port.Step, error) {
	chunkDef := n.Chunk

	builtReader, err := c.Components.Build(KindReader, chunkDef.Reader)
	if err != nil {
		return nil, err
	}
	reader, ok := builtReader.(port.ItemReader[any])
	if !ok {
		return nil, typeError(n.ID, chunkDef.Reader.Ref, "ItemReader[any]", builtReader)
	}
	var processor port.ItemProcessor[any, any]
	if chunkDef.Processor != nil {
		builtProcessor, err := c.Components.Build(KindProcessor, *chunkDef.Processor)
		if err != nil {
			return nil, err
		}
		processor, ok = builtProcessor.(port.ItemProcessor[any, any])
		if !ok {
			return nil, typeError(n.ID, chunkDef.Processor.Ref, "ItemProcessor[any, any]", builtProcessor)
		}
	}
	builtWriter, err := c.Components.Build(KindWriter, chunkDef.Writer)
	if err != nil {
		return nil, err
	}
	writer, ok := builtWriter.(port.ItemWriter[any])
	if !ok {
		return nil, typeError(n.ID, chunkDef.Writer.Ref, "ItemWriter[any]", builtWriter)
	}

	stepListeners, extras, err := c.stepListeners(n)
	if err != nil {
		return nil, err
	}
	cfg := item.Config{
		ChunkSize:        chunkDef.Size,
		FailFast:         chunkDef.FailFast,
		SkipLimit:        chunkDef.SkipLimit,
		FatalExceptions:  chunkDef.FatalExceptions,
		IsolationLevel:   chunkDef.IsolationLevel,
		JobRepository:    c.JobRepository,
		StepListeners:    stepListeners,
		ChunkListeners:   extras.chunk,
		ProcessListeners: extras.process,
		RetryListeners:   extras.retry,
		MetricRecorder:   c.MetricRecorder,
		Tracer:           c.Tracer,
	}
	if cfg.ChunkSize == 0 && c.Config != nil {
		cfg.ChunkSize = c.Config.Surfin.Batch.ChunkSize
	}
	if len(chunkDef.SkippableExceptions) > 0 && !chunkDef.FailFast {
		policy, err := skip.NewListedPolicy(chunkDef.SkipLimit, chunkDef.SkippableExceptions)
		if err != nil {
			return nil, exception.NewConfigurationError(compilerModule, "step '%s': %v", n.ID, err)
		}
		cfg.IsolationPolicy = policy
	}
	policy, err := c.retryPolicy(n.ID, chunkDef.Retry)
	if err != nil {
		return nil, err
	}
	cfg.ReadRetry = policy
	cfg.WriteRetry = policy
	if chunkDef.Datasource != "" {
		m, err := c.txManager(n.ID, chunkDef.Datasource)
		if err != nil {
			return nil, err
		}
		cfg.TxManager = m
	}
	return item.NewChunkStep[any, any](n.ID, reader, processor, writer, cfg), nil
}

// retryPolicy overlays the step's retry settings on batch.retry.
func (c *Compiler) retryPolicy(stepID string, r *Retry) (retry.Policy, error) {
	base := retry.DefaultPolicy()
	if c.Config != nil {
		base = retry.FromConfig(c.Config.Surfin.Batch.Retry)
	}
	if r == nil {
		return base, nil
	}
	if r.MaxAttempts > 0 {
		base.MaxAttempts = r.MaxAttempts
	}
	if r.InitialInterval != "" {
		d, err := time.ParseDuration(r.InitialInterval)
		if err != nil {
			return base, exception.NewConfigurationError(compilerModule, "step '%s': invalid initial-interval '%s': %v", stepID, r.InitialInterval, err)
		}
		base.InitialInterval = d
	}
	if r.MaxInterval != "" {
		d, err := time.ParseDuration(r.MaxInterval)
		if err != nil {
			return base, exception.NewConfigurationError(compilerModule, "step '%s': invalid max-interval '%s': %v", stepID, r.MaxInterval, err)
		}
		base.MaxInterval = d
	}
	if len(r.RetryableExceptions) > 0 {
		base.RetryableExceptions = r.RetryableExceptions
	}
	return base, nil
}

func (c *Compiler) txManager(stepID, datasource string) (tx.TransactionManager, error) {
	if c.TxManagers == nil {
		return nil, exception.NewConfigurationError(compilerModule, "step '%s' names datasource '%s' but no database is configured", stepID, datasource)
	}
	if c.Config != nil {
		if _, ok := c.Config.Surfin.Database[datasource]; !ok {
			return nil, exception.NewConfigurationError(compilerModule, "step '%s': datasource '%s' is not configured", stepID, datasource)
		}
	}
	return c.TxManagers.ForDatasource(datasource), nil
}

type listenerExtras struct {
	chunk   []port.ChunkListener
	process []port.ItemProcessListener
	retry   []port.RetryListener
}

// stepListeners builds the step's listeners. A listener that also observes chunks,
// isolated items or retries is registered for those too.
func (c *Compiler) stepListeners(n Node) ([]port.StepExecutionListener, listenerExtras, error) {
	var extras listenerExtras
	listeners := append([]port.StepExecutionListener(nil), c.StepListeners...)
	candidates := make([]interface{}, 0, len(c.StepListeners)+len(n.Listeners))
	for _, l := range c.StepListeners {
		candidates = append(candidates, l)
	}
	for _, ref := range n.Listeners {
		built, err := c.Components.Build(KindStepListener, ref)
		if err != nil {
			return nil, extras, err
		}
		candidates = append(candidates, built)
		if l, ok := built.(port.StepExecutionListener); ok {
			listeners = append(listeners, l)
		}
	}
	for _, cand := range candidates {
		if l, ok := cand.(port.ChunkListener); ok {
			extras.chunk = append(extras.chunk, l)
		}
		if l, ok := cand.(port.ItemProcessListener); ok {
			extras.process = append(extras.process, l)
		}
		if l, ok := cand.(port.RetryListener); ok {
			extras.retry = append(extras.retry, l)
		}
	}
	return listeners, extras, nil
}

func typeError(owner, ref, want string, got interface{}) error {
	return exception.NewConfigurationError(compilerModule, "'%s': component '%s' is %T, not a %s", owner, ref, got, want)
}

// namedDecider gives a registered decider the id of the node it is used by, so one
// decider implementation can back several nodes.
type namedDecider struct {
	port.Decider
	name string
}

func (d *namedDecider) DeciderName() string {
	return d.name
}

func (d *namedDecider) Decide(ctx context.Context, je *model.JobExecution, last *model.StepExecution) (model.ExitStatus, error) {
	status, err := d.Decider.Decide(ctx, je, last)
	if err != nil {
		return status, fmt.Errorf("decision '%s': %w", d.name, err)
	}
	return status, nil
}
