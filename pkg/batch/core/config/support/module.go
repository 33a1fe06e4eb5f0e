package support

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Fx group tags.
const (
	// JobDefinitionGroup collects jsl.JSLDefinitionBytes documents, usually embedded.
	JobDefinitionGroup = `group:"jsl_definitions"`
	// JobGroup collects jobs assembled in code rather than from JSL.
	JobGroup = `group:"jobs"`
	// JobListenerGroup collects listeners attached to every job.
	JobListenerGroup = `group:"job_listeners"`
	// StepListenerGroup collects listeners attached to every step.
	StepListenerGroup = `group:"step_listeners"`
)

// AsJob annotates a constructor of a port.Job for JobGroup.
func AsJob(constructor interface{}) interface{} {
	return fx.Annotate(constructor, fx.As(new(port.Job)), fx.ResultTags(JobGroup))
}

// SupplyDefinition adds a JSL document to JobDefinitionGroup.
func SupplyDefinition(document []byte) fx.Option {
	return fx.Provide(fx.Annotate(
		func() jsl.JSLDefinitionBytes { return document },
		fx.ResultTags(JobDefinitionGroup),
	))
}

// RegisterJobsParams defines the dependencies of RegisterJobsHook.
type RegisterJobsParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Cfg         *config.Config
	Factory     *JobFactory
	Registry    *JobRegistry
	Definitions []jsl.JSLDefinitionBytes `group:"jsl_definitions"`
	Jobs        []port.Job               `group:"jobs"`
}

// RegisterJobsHook compiles and registers all jobs on start. Components register their
// builders from fx.Invoke, so compilation waits until the graph is complete.
func RegisterJobsHook(p RegisterJobsParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, job := range p.Jobs {
				if err := job.Validate(); err != nil {
					return err
				}
				if err := p.Registry.Register(job); err != nil {
					return err
				}
			}
			if _, err := p.Factory.LoadDefinitions(p.Definitions...); err != nil {
				return err
			}
			if path := p.Cfg.Surfin.Batch.JobDefinitionPath; path != "" {
				if _, err := p.Factory.LoadDefinitionFile(path); err != nil {
					return err
				}
			}
			logger.Infof("Registered jobs: %v", p.Registry.Names())
			return nil
		},
	})
}

// Module provides the component registry, the job registry and the JobFactory, and
// registers all jobs on start.
var Module = fx.Options(
	fx.Provide(
		jsl.NewComponentRegistry,
		NewJobRegistry,
		NewJobFactory,
	),
	fx.Invoke(RegisterJobsHook),
)
