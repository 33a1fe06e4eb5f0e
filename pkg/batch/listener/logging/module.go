package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterLoggingListenerBuilders registers "loggingJobListener" and
// "loggingStepListener" for job definitions.
func RegisterLoggingListenerBuilders(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindJobListener, "loggingJobListener", func(map[string]string) (interface{}, error) {
		return NewLoggingJobListener(), nil
	})
	registry.Register(jsl.KindStepListener, "loggingStepListener", func(properties map[string]string) (interface{}, error) {
		return NewLoggingStepListener(properties), nil
	})
	logger.Debugf("Logging listeners registered with the component registry.")
}

// Module registers the logging listener builders.
var Module = fx.Options(
	fx.Invoke(RegisterLoggingListenerBuilders),
)

// GlobalModule attaches the logging listeners to every job and step.
var GlobalModule = fx.Options(
	fx.Provide(
		fx.Annotate(
			func() *LoggingJobListener { return NewLoggingJobListener() },
			fx.As(new(port.JobExecutionListener)),
			fx.ResultTags(support.JobListenerGroup),
		),
		fx.Annotate(
			func() *LoggingStepListener { return NewLoggingStepListener(nil) },
			fx.As(new(port.StepExecutionListener)),
			fx.ResultTags(support.StepListenerGroup),
		),
	),
)
