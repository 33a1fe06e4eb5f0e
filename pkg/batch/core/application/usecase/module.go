package usecase

import (
	"context"

	"go.uber.org/fx"
)

// Module is the Fx module for JobLauncher, JobOperator, and JobExplorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(launcher *SimpleJobLauncher) JobLauncher { return launcher }),
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
	)),
	fx.Invoke(registerLauncherShutdown),
)

// registerLauncherShutdown stops running executions when the application stops, so their
// final state is recorded before the repository closes.
func registerLauncherShutdown(lc fx.Lifecycle, launcher *SimpleJobLauncher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return launcher.Shutdown(ctx)
		},
	})
}
