package main

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/example/tutorial/internal/app"
	"github.com/tigerroll/surfin-flow/example/tutorial/internal/migrations"
	"github.com/tigerroll/surfin-flow/example/tutorial/internal/pay"
	gormadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/gorm/sqlite"
	httpapi "github.com/tigerroll/surfin-flow/pkg/batch/adapter/http"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/item"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/reader"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/writer"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/generic"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration"
	usecase "github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	bootstrap "github.com/tigerroll/surfin-flow/pkg/batch/core/config/bootstrap"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	supportConfig "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	decision "github.com/tigerroll/surfin-flow/pkg/batch/core/job/decision"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/runner"
	incrementer "github.com/tigerroll/surfin-flow/pkg/batch/core/support/incrementer"
	infraMetrics "github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/metrics"
	jobRepository "github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/telemetry"
	batchlistener "github.com/tigerroll/surfin-flow/pkg/batch/listener"
	"github.com/tigerroll/surfin-flow/pkg/batch/listener/logging"
	listenerMetrics "github.com/tigerroll/surfin-flow/pkg/batch/listener/metrics"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// GetApplicationOptions assembles the fx options of the tutorial application.
func GetApplicationOptions(appCtx context.Context, cl app.CommandLine, embeddedConfig config.EmbeddedConfig, embeddedJSL jsl.JSLDefinitionBytes) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		embeddedConfig,
		cl,
		fx.Annotate(cl.EnvFile, fx.ResultTags(`name:"envFilePath"`)),
		fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
	))

	// Ambient stack.
	options = append(options, logger.Module)
	options = append(options, config.Module)
	options = append(options, telemetry.Module)
	options = append(options, infraMetrics.Module)
	options = append(options, bootstrap.Module)

	// Datasources and storage.
	options = append(options, gormadapter.Module, sqlite.Module, mysql.Module, postgres.Module)
	options = append(options, storage.Module, local.Module, gcs.Module)

	// Engine.
	options = append(options, jobRepository.Module)
	options = append(options, runner.Module)
	options = append(options, supportConfig.Module)
	options = append(options, usecase.Module)
	options = append(options, httpapi.Module)

	// Components referenced from job.yaml.
	options = append(options, batchlistener.Module)
	options = append(options, logging.GlobalModule)
	options = append(options, listenerMetrics.GlobalModule)
	options = append(options, decision.Module)
	options = append(options, incrementer.Module)
	options = append(options, item.Module)
	options = append(options, generic.Module)
	options = append(options, migration.Module)
	options = append(options, migrations.Module)
	options = append(options, reader.Module)
	options = append(options, writer.Module)
	options = append(options, pay.Module)
	options = append(options, supportConfig.SupplyDefinition(embeddedJSL))

	options = append(options, fx.Invoke(app.RegisterRunHook))

	return options
}
