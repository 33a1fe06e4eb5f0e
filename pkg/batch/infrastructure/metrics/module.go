package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/telemetry"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RecorderParams defines the dependencies of NewMetricRecorder.
type RecorderParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Registry  *prometheus.Registry
	Telemetry *telemetry.Providers
}

// NewMetricRecorder assembles the configured backends: Prometheus when
// system.metrics.enabled, OpenTelemetry when system.tracing.enabled. With neither the
// no-op recorder is returned.
func NewMetricRecorder(p RecorderParams) (metrics.MetricRecorder, error) {
	var recorders CompositeRecorder
	if p.Cfg.Surfin.System.Metrics.Enabled {
		recorders = append(recorders, NewPrometheusRecorder(p.Registry))
	}
	if p.Cfg.Surfin.System.Tracing.Enabled {
		otelRecorder, err := NewOTelRecorder(p.Telemetry.Meter())
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, otelRecorder)
	}

	var recorder metrics.MetricRecorder
	switch len(recorders) {
	case 0:
		return metrics.NewNoOpMetricRecorder(), nil
	case 1:
		recorder = recorders[0]
	default:
		recorder = recorders
	}

	if size := p.Cfg.Surfin.System.Metrics.AsyncBufferSize; size > 0 {
		async := NewAsyncMetricRecorder(size, recorder)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				async.Close()
				return nil
			},
		})
		logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
		return async, nil
	}
	return recorder, nil
}

// NewTracer returns an OTelTracer on the telemetry tracer provider. The provider is a
// no-op when tracing is disabled.
func NewTracer(p *telemetry.Providers) metrics.Tracer {
	return NewOTelTracer(p.Tracer())
}

// Module provides the Prometheus registry, the MetricRecorder and the Tracer. It
// requires telemetry.Module.
var Module = fx.Options(
	fx.Provide(
		NewRegistry,
		NewMetricRecorder,
		NewTracer,
	),
)
