// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes Fx lifecycle events and prints through a zap logger.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates an fxevent.Logger backed by zap.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// NewFxPrinter creates an fx.Printer backed by zap.
func NewFxPrinter(logger *zap.Logger) fx.Printer {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		a.hookDone("OnStart", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStopExecuted:
		a.hookDone("OnStop", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		a.withError(e.Err, "supplied", zap.String("type", e.TypeName), zap.String("module", e.ModuleName))
	case *fxevent.Provided:
		a.withError(e.Err, "provided",
			zap.Strings("types", e.OutputTypeNames),
			zap.String("constructor", e.ConstructorName),
			zap.String("module", e.ModuleName))
	case *fxevent.Invoking:
		a.logger.Debug("invoking", zap.String("function", e.FunctionName), zap.String("module", e.ModuleName))
	case *fxevent.Invoked:
		a.withError(e.Err, "invoked", zap.String("function", e.FunctionName), zap.String("module", e.ModuleName))
	case *fxevent.Stopping:
		a.logger.Info("received signal", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		a.terminal("stopped", e.Err)
	case *fxevent.RollingBack:
		a.logger.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		a.terminal("rolled back", e.Err)
	case *fxevent.Started:
		a.terminal("started", e.Err)
	case *fxevent.LoggerInitialized:
		a.withError(e.Err, "logger initialized", zap.String("constructor", e.ConstructorName))
	default:
		a.logger.Debug("unhandled fx event", zap.String("event", fmt.Sprintf("%T", event)))
	}
}

// Printf implements fx.Printer.
func (a *FxLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Sugar().Infof(format, args...)
}

func (a *FxLoggerAdapter) hookDone(hook, callee, caller, runtime string, err error) {
	if err != nil {
		a.logger.Error(hook+" hook failed",
			zap.String("callee", callee),
			zap.String("caller", caller),
			zap.Error(err))

		return
	}

	a.logger.Debug(hook+" hook executed",
		zap.String("callee", callee),
		zap.String("caller", caller),
		zap.String("runtime", runtime))
}

func (a *FxLoggerAdapter) withError(err error, msg string, fields ...zap.Field) {
	if err != nil {
		a.logger.Error(msg, append(fields, zap.Error(err))...)

		return
	}

	a.logger.Debug(msg, fields...)
}

func (a *FxLoggerAdapter) terminal(msg string, err error) {
	if err != nil {
		a.logger.Error(msg, zap.Error(err))

		return
	}

	a.logger.Info(msg)
}
