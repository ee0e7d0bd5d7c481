// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/bridge"
	"github.com/Raikerian/go-rtc-translate/internal/capture"
	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/turn"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	app := fx.New(options...)

	return &Application{
		app: app,
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Start starts the application without blocking.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// Err reports a dependency graph error, if any.
func (a *Application) Err() error {
	return a.app.Err()
}

// LifecycleParams holds everything the top-level hooks connect.
type LifecycleParams struct {
	fx.In
	LC          fx.Lifecycle
	Logger      *zap.Logger
	Cfg         *config.Config
	Capture     *capture.Capture
	Recorder    *capture.Recorder `optional:"true"`
	Observer    *envelope.Observer
	Machine     *session.Machine
	Coordinator *turn.Coordinator
	Server      *bridge.Server
}

// registerLifecycleHooks connects the audio pipeline and starts the envelope
// worker. With auto_connect set, a session is started in the background.
func registerLifecycleHooks(p LifecycleParams) {
	p.Capture.Attach(p.Observer)
	if p.Recorder != nil {
		p.Capture.Attach(p.Recorder)
	}
	p.Observer.AddPlaybackSink(p.Coordinator)

	connectCtx, cancel := context.WithCancel(context.Background())
	connectDone := make(chan struct{})

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Info("Starting application", zap.String("bridge", p.Server.Addr()))
			p.Observer.Start()

			if !p.Cfg.Backend.AutoConnect {
				close(connectDone)

				return nil
			}

			go func() {
				defer close(connectDone)
				if err := p.Machine.Connect(connectCtx, p.Cfg.Backend.DevReset); err != nil {
					p.Logger.Error("Automatic connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Stopping application")

			cancel()
			select {
			case <-connectDone:
			case <-ctx.Done():
				return ctx.Err()
			}

			p.Machine.Stop()
			if err := p.Capture.Stop(); err != nil {
				p.Logger.Warn("Capture stop failed", zap.Error(err))
			}
			p.Observer.Stop()

			if p.Recorder != nil {
				path, err := p.Recorder.Flush()
				if err != nil {
					p.Logger.Error("Failed to write capture recording", zap.Error(err))
				} else if path != "" {
					p.Logger.Info("Capture recording saved", zap.String("path", path))
				}
			}

			p.Logger.Info("Application stopped")

			return nil
		},
	})
}
