package bootstrap

import "go.uber.org/fx"

// Module applies the logging settings and runs framework migrations on start.
var Module = fx.Options(
	fx.Invoke(ApplyLoggingConfigHook),
	fx.Invoke(RunFrameworkMigrationsHook),
)
