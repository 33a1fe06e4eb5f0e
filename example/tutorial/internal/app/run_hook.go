package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	usecase "github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Exit codes of the tutorial binary.
const (
	ExitCompleted = 0
	ExitFailed    = 1
	ExitRejected  = 2
)

// RunHookParams defines the dependencies of RegisterRunHook.
type RunHookParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Shutdowner  fx.Shutdowner
	Cfg         *config.Config
	Launcher    usecase.JobLauncher
	Operator    usecase.JobOperator
	Explorer    usecase.JobExplorer
	CommandLine CommandLine
	AppCtx      context.Context `name:"appCtx"`
}

// RegisterRunHook runs the requested job once the application has started and shuts the
// application down with an exit code reflecting its outcome. With -serve, or when no job
// is named anywhere, the application keeps serving until it is signalled.
func RegisterRunHook(p RunHookParams) {
	jobName := p.CommandLine.JobName
	if jobName == "" {
		jobName = p.Cfg.Surfin.Batch.JobName
	}
	if p.CommandLine.Serve || jobName == "" {
		logger.Infof("No job requested. Serving until shutdown.")
		return
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := ExitFailed
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
					}
					logger.Infof("Requesting application shutdown after job completion.")
					if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()
				code = p.run(p.AppCtx, jobName)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func (p RunHookParams) run(ctx context.Context, jobName string) int {
	async := p.CommandLine.Async || p.Cfg.Surfin.Batch.Async || p.CommandLine.Next

	var (
		je  *model.JobExecution
		err error
	)
	switch {
	case p.CommandLine.Next:
		logger.Infof("Starting the next instance of job '%s'...", jobName)
		je, err = p.Operator.StartNextInstance(ctx, jobName)
	case async:
		logger.Infof("Launching job '%s' with parameters %s...", jobName, p.CommandLine.Params.String())
		je, err = p.Launcher.Launch(ctx, jobName, p.CommandLine.Params)
	default:
		logger.Infof("Running job '%s' with parameters %s...", jobName, p.CommandLine.Params.String())
		je, err = p.Launcher.Run(ctx, jobName, p.CommandLine.Params)
	}
	if err != nil {
		logger.Errorf("Failed to launch job '%s': %v", jobName, err)
		return ExitRejected
	}
	if async {
		if je = p.monitor(ctx, jobName, je); je == nil {
			return ExitFailed
		}
	}
	return report(jobName, je)
}

// monitor polls the execution until it finishes. A cancelled ctx requests a stop and
// returns nil; the launcher records the final state during shutdown.
func (p RunHookParams) monitor(ctx context.Context, jobName string, je *model.JobExecution) *model.JobExecution {
	interval := time.Duration(p.Cfg.Surfin.Batch.PollingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger.Infof("Monitoring job '%s' (Execution ID: %s) with polling interval %v...", jobName, je.ID, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Warnf("Application context cancelled. Stopping job '%s' (Execution ID: %s).", jobName, je.ID)
			if err := p.Operator.Stop(context.Background(), je.ID); err != nil {
				logger.Warnf("Failed to stop JobExecution (ID: %s): %v", je.ID, err)
			}
			return nil
		case <-ticker.C:
			latest, err := p.Explorer.GetJobExecution(ctx, je.ID)
			if err != nil {
				logger.Errorf("Failed to fetch latest status for JobExecution (ID: %s): %v", je.ID, err)
				continue
			}
			if latest.Status.IsFinished() {
				return latest
			}
			logger.Debugf("Job '%s' (Execution ID: %s) is still running. Current status: %s", jobName, latest.ID, latest.Status)
		}
	}
}

func report(jobName string, je *model.JobExecution) int {
	summary := usecase.NewJobExecutionSummary(je)
	logger.Infof("Job '%s' (Execution ID: %s) finished with status: %s, ExitStatus: %s",
		jobName, je.ID, je.Status, je.ExitStatus)
	for _, s := range summary.Steps {
		logger.Infof("  step %-24s %-10s read=%d write=%d filter=%d skip=%d commit=%d rollback=%d",
			s.Name, s.Status, s.Read, s.Write, s.Filter, s.Skip, s.Commit, s.Rollback)
	}
	for _, f := range summary.Failures {
		logger.Warnf("  failure: %s", f)
	}
	if je.Status == model.BatchStatusCompleted {
		return ExitCompleted
	}
	return ExitFailed
}
