package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterMetricsListenerBuilders registers "metricsJobListener" and
// "metricsStepListener" for job definitions.
func RegisterMetricsListenerBuilders(registry *jsl.ComponentRegistry, gauges *Gauges) {
	registry.Register(jsl.KindJobListener, "metricsJobListener", func(map[string]string) (interface{}, error) {
		return NewMetricsJobListener(gauges), nil
	})
	registry.Register(jsl.KindStepListener, "metricsStepListener", func(map[string]string) (interface{}, error) {
		return NewMetricsStepListener(gauges), nil
	})
	logger.Debugf("Metrics listeners registered with the component registry.")
}

// Module provides the gauges on the application's *prometheus.Registry and registers
// the listener builders.
var Module = fx.Options(
	fx.Provide(func(registry *prometheus.Registry) *Gauges { return NewGauges(registry) }),
	fx.Invoke(RegisterMetricsListenerBuilders),
)

// GlobalModule attaches the metrics listeners to every job and step.
var GlobalModule = fx.Options(
	fx.Provide(
		fx.Annotate(NewMetricsJobListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(support.JobListenerGroup)),
		fx.Annotate(NewMetricsStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(support.StepListenerGroup)),
	),
)
