// Command probe checks that the translation backend is reachable with the
// configured credentials, and optionally resets its development state.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/infrastructure"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
	pkginfra "github.com/Raikerian/go-rtc-translate/pkg/infrastructure"
)

// ProbeParams holds dependencies for runProbe.
type ProbeParams struct {
	fx.In
	Logger     *zap.Logger
	Client     *signaling.Client
	Shutdowner fx.Shutdowner
}

func runProbe(reset bool) func(p ProbeParams) error {
	return func(p ProbeParams) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.Client.Health(ctx); err != nil {
			return err
		}
		p.Logger.Info("Backend healthy")

		if reset {
			if err := p.Client.Reset(ctx); err != nil {
				return err
			}
			p.Logger.Info("Backend state reset")
		}

		return p.Shutdowner.Shutdown()
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	reset := flag.Bool("reset", false, "call /dev/reset after the health check")
	flag.Parse()

	app := fx.New(
		config.Module,
		infrastructure.LoggerModule,
		signaling.Module,
		fx.Supply(*configPath),
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
		fx.Invoke(runProbe(*reset)),
	)

	if err := app.Err(); err != nil {
		log.Fatalf("Probe failed: %v", err)
	}

	app.Run()
}
