package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
)

// Module exposes SimpleJobRunner as the port.JobRunner the launcher drives.
var Module = fx.Provide(fx.Annotate(NewSimpleJobRunner, fx.As(new(port.JobRunner))))
