// Package listener aggregates the listener modules of the batch framework.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/listener/logging"
	"github.com/tigerroll/surfin-flow/pkg/batch/listener/metrics"
	"github.com/tigerroll/surfin-flow/pkg/batch/listener/notification"
	"github.com/tigerroll/surfin-flow/pkg/batch/listener/tracing"
)

// Module registers every listener builder, so job definitions can reference them.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
