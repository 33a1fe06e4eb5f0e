// Package support assembles runnable jobs: it compiles JSL definitions against the
// registered components and keeps the resulting jobs in the JobRegistry.
package support

import (
	"os"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// JobFactory compiles job definitions and registers the results.
type JobFactory struct {
	config   *config.Config
	compiler *jsl.Compiler
	registry *JobRegistry
}

// JobFactoryParams defines the dependencies of NewJobFactory.
type JobFactoryParams struct {
	fx.In
	Cfg            *config.Config
	Repo           repository.JobRepository
	Components     *jsl.ComponentRegistry
	Registry       *JobRegistry
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	// TxManagers is absent when no database adapter is wired.
	TxManagers    tx.TransactionManagerFactory `optional:"true"`
	JobListeners  []port.JobExecutionListener  `group:"job_listeners"`
	StepListeners []port.StepExecutionListener `group:"step_listeners"`
}

// NewJobFactory creates a new JobFactory.
//
// Parameters:
//
//	p: The JobFactoryParams struct containing injected dependencies.
//
// Returns:
//
//	A pointer to the initialized JobFactory.
func NewJobFactory(p JobFactoryParams) *JobFactory {
	return &JobFactory{
		config:   p.Cfg,
		registry: p.Registry,
		compiler: &jsl.Compiler{
			Config:         p.Cfg,
			Components:     p.Components,
			JobRepository:  p.Repo,
			TxManagers:     p.TxManagers,
			MetricRecorder: p.MetricRecorder,
			Tracer:         p.Tracer,
			JobListeners:   p.JobListeners,
			StepListeners:  p.StepListeners,
		},
	}
}

// GetConfig returns the configuration the factory compiles against.
func (f *JobFactory) GetConfig() *config.Config {
	return f.config
}

// CreateJob compiles one definition without registering it.
func (f *JobFactory) CreateJob(job jsl.Job) (port.Job, error) {
	return f.compiler.Compile(job)
}

// LoadDefinitions parses, compiles and registers every job in documents. Nothing is
// registered if any definition is invalid.
//
// Parameters:
//
//	documents: JSL documents, each holding one job or a `jobs:` list.
//
// Returns:
//
//	The names of the registered jobs, or the first configuration error.
func (f *JobFactory) LoadDefinitions(documents ...jsl.JSLDefinitionBytes) ([]string, error) {
	jobs, err := jsl.ParseAll(documents...)
	if err != nil {
		return nil, err
	}
	compiled, err := f.compiler.CompileAll(jobs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(compiled))
	for _, job := range compiled {
		if err := f.registry.Register(job); err != nil {
			return names, err
		}
		names = append(names, job.JobName())
	}
	return names, nil
}

// LoadDefinitionFile reads a JSL file from disk and loads it.
func (f *JobFactory) LoadDefinitionFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", "failed to read job definition file '"+path+"'", err, false, false)
	}
	logger.Infof("Loading job definitions from %s.", path)
	return f.LoadDefinitions(data)
}
