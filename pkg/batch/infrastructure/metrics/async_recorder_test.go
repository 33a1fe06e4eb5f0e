package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	inframetrics "github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/metrics"
)

func TestAsyncMetricRecorder_CloseDrainsQueue(t *testing.T) {
	registry := prometheus.NewRegistry()
	async := inframetrics.NewAsyncMetricRecorder(64, inframetrics.NewPrometheusRecorder(registry))
	_, se := newExecutions()
	ctx, cancel := context.WithCancel(port.WithStepExecution(context.Background(), se))

	for i := 0; i < 20; i++ {
		async.RecordItemRead(ctx, "payStep", 1)
	}
	cancel()
	async.Close()

	counter, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, counter)
	assertSeries(t, 1, registry, "batch_step_items_total")
	// a second Close is harmless
	async.Close()
}

func TestCompositeRecorder_FansOut(t *testing.T) {
	first, second := prometheus.NewRegistry(), prometheus.NewRegistry()
	composite := inframetrics.CompositeRecorder{
		inframetrics.NewPrometheusRecorder(first),
		inframetrics.NewPrometheusRecorder(second),
	}
	_, se := newExecutions()
	composite.RecordItemWrite(port.WithStepExecution(context.Background(), se), "payStep", 3)

	assertSeries(t, 1, first, "batch_step_items_total")
	assertSeries(t, 1, second, "batch_step_items_total")
}
