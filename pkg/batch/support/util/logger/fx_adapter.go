package logger

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module routes fx container events to the batch logger.
var Module = fx.WithLogger(NewFxLoggerAdapter)

// FxLoggerAdapter writes fx events as structured entries on the "fx" logger.
// Container wiring is logged at DEBUG, failures at ERROR.
type FxLoggerAdapter struct {
	log *zap.Logger
}

// NewFxLoggerAdapter creates the adapter over the current process logger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{log: Zap().Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		l.outcome("OnStart hook", e.Err, zap.String("callee", hookName(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuted:
		l.outcome("OnStop hook", e.Err, zap.String("callee", hookName(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.Provided:
		l.outcome("provide", e.Err, zap.String("constructor", e.ConstructorName), zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Invoked:
		l.outcome("invoke", e.Err, zap.String("function", e.FunctionName))
	case *fxevent.Stopping:
		l.log.Info("received signal, stopping", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.RollingBack:
		l.log.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.Started:
		if e.Err != nil {
			l.log.Error("start failed", zap.Error(e.Err))
			return
		}
		l.log.Info("application started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			l.log.Error("custom fx logger initialization failed", zap.Error(e.Err))
		}
	}
}

func (l *FxLoggerAdapter) outcome(what string, err error, fields ...zap.Field) {
	if err != nil {
		l.log.Error(what+" failed", append(fields, zap.Error(err))...)
		return
	}
	l.log.Debug(what, fields...)
}

// hookName strips the ".funcN" suffix fx reports for closures.
func hookName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
