package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterTracingListenerBuilders registers "tracingJobListener" and
// "tracingStepListener" for job definitions.
func RegisterTracingListenerBuilders(registry *jsl.ComponentRegistry, tracer metrics.Tracer) {
	registry.Register(jsl.KindJobListener, "tracingJobListener", func(map[string]string) (interface{}, error) {
		return NewTracingJobListener(tracer), nil
	})
	registry.Register(jsl.KindStepListener, "tracingStepListener", func(map[string]string) (interface{}, error) {
		return NewTracingStepListener(tracer), nil
	})
	logger.Debugf("Tracing listeners registered with the component registry.")
}

// Module registers the tracing listener builders. The Tracer itself comes from
// infrastructure/metrics.
var Module = fx.Options(
	fx.Invoke(RegisterTracingListenerBuilders),
)

// GlobalModule attaches the tracing listeners to every job and step.
var GlobalModule = fx.Options(
	fx.Provide(
		fx.Annotate(NewTracingJobListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(support.JobListenerGroup)),
		fx.Annotate(NewTracingStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(support.StepListenerGroup)),
	),
)
