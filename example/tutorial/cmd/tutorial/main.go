package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/example/tutorial/internal/app"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedJSL holds the tutorial job definitions.
//
//go:embed resources/job.yaml
var embeddedJSL []byte

const startStopTimeout = 30 * time.Second

func main() {
	cl, err := app.ParseCommandLine(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(app.ExitRejected)
	}

	// The job runs on appCtx so a signal stops it before fx starts shutting down.
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fxApp := fx.New(GetApplicationOptions(appCtx, cl, embeddedConfig, embeddedJSL)...)

	startCtx, cancelStart := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		os.Exit(app.ExitRejected)
	}

	signalled := <-fxApp.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
		if signalled.ExitCode == app.ExitCompleted {
			signalled.ExitCode = app.ExitFailed
		}
	}
	os.Exit(signalled.ExitCode)
}
