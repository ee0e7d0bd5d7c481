package turn

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
)

// Module provides the turn coordinator.
var Module = fx.Module("turn",
	fx.Provide(NewCoordinatorFromParams),
)

// CoordinatorParams holds dependencies for NewCoordinatorFromParams.
type CoordinatorParams struct {
	fx.In
	Logger  *zap.Logger
	Cfg     *config.Config
	Metrics *metrics.Metrics
	Machine *session.Machine
	Client  *signaling.Client
	LC      fx.Lifecycle
}

// NewCoordinatorFromParams creates the coordinator and runs its event loop
// for the application lifetime.
func NewCoordinatorFromParams(p CoordinatorParams) (*Coordinator, error) {
	c, err := NewCoordinator(p.Logger, p.Cfg, p.Metrics, p.Machine, p.Client)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				c.Run(runCtx)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			c.Close()

			return nil
		},
	})

	return c, nil
}
