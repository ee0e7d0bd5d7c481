package infrastructure_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-rtc-translate/pkg/infrastructure"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	return zap.New(core), logs
}

func TestFxLoggerAdapter_LogEvent(t *testing.T) {
	testErr := errors.New("boom")

	tests := map[string]struct {
		event    fxevent.Event
		message  string
		level    zapcore.Level
		hasError bool
	}{
		"onstart_executed": {
			event:   &fxevent.OnStartExecuted{FunctionName: "start", CallerName: "app"},
			message: "OnStart hook executed",
			level:   zapcore.DebugLevel,
		},
		"onstart_failed": {
			event:    &fxevent.OnStartExecuted{FunctionName: "start", CallerName: "app", Err: testErr},
			message:  "OnStart hook failed",
			level:    zapcore.ErrorLevel,
			hasError: true,
		},
		"provided": {
			event:   &fxevent.Provided{OutputTypeNames: []string{"*zap.Logger"}, ConstructorName: "NewZapLogger"},
			message: "provided",
			level:   zapcore.DebugLevel,
		},
		"invoke_failed": {
			event:    &fxevent.Invoked{FunctionName: "wire", Err: testErr},
			message:  "invoked",
			level:    zapcore.ErrorLevel,
			hasError: true,
		},
		"stopping": {
			event:   &fxevent.Stopping{Signal: syscall.SIGTERM},
			message: "received signal",
			level:   zapcore.InfoLevel,
		},
		"started": {
			event:   &fxevent.Started{},
			message: "started",
			level:   zapcore.InfoLevel,
		},
		"rolling_back": {
			event:    &fxevent.RollingBack{StartErr: testErr},
			message:  "start failed, rolling back",
			level:    zapcore.ErrorLevel,
			hasError: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logger, logs := observedLogger()
			adapter := infrastructure.NewFxLoggerAdapter(logger)

			adapter.LogEvent(tt.event)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, tt.level, entries[0].Level)
			_, hasErr := entries[0].ContextMap()["error"]
			assert.Equal(t, tt.hasError, hasErr)
		})
	}
}

func TestFxPrinter_Printf(t *testing.T) {
	logger, logs := observedLogger()
	printer := infrastructure.NewFxPrinter(logger)

	printer.Printf("session %s", "abc")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "session abc", logs.All()[0].Message)
}

func TestFxIntegration(t *testing.T) {
	logger, logs := observedLogger()

	app := fx.New(
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
		fx.Supply(logger),
		fx.Invoke(func(*zap.Logger) {}),
	)
	require.NoError(t, app.Err())

	assert.NotZero(t, logs.FilterMessage("invoked").Len())
}
