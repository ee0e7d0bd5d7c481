package session

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/capture"
	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/playback"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
)

// Module provides the session state machine.
var Module = fx.Module("session",
	fx.Provide(NewMachineFromParams),
)

// MachineParams holds dependencies for NewMachineFromParams.
type MachineParams struct {
	fx.In
	Logger   *zap.Logger
	Cfg      *config.Config
	Metrics  *metrics.Metrics
	Client   *signaling.Client
	Capture  *capture.Capture
	Receiver *playback.Receiver
	LC       fx.Lifecycle
}

// NewMachineFromParams creates the machine and closes any live session on
// application stop.
func NewMachineFromParams(p MachineParams) (*Machine, error) {
	m, err := NewMachine(p.Logger, p.Cfg, p.Metrics, p.Client, p.Capture, p.Receiver)
	if err != nil {
		return nil, err
	}

	p.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Stop()

			return nil
		},
	})

	return m, nil
}
