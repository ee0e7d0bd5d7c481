package playback

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// Module provides the playback receiver and its collaborators.
var Module = fx.Module("playback",
	fx.Provide(
		NewVisualizerWithLifecycle,
		NewPlayerWithLifecycle,
		NewReceiverFromParams,
	),
)

// VisualizerParams holds dependencies for NewVisualizerWithLifecycle.
type VisualizerParams struct {
	fx.In
	Logger   *zap.Logger
	Cfg      *config.Config
	Observer *envelope.Observer
	LC       fx.Lifecycle
}

// NewVisualizerWithLifecycle ties the visualizer ticker to the app lifecycle.
func NewVisualizerWithLifecycle(p VisualizerParams) *Visualizer {
	v := NewVisualizer(p.Logger, p.Cfg, p.Observer)

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			v.Start()

			return nil
		},
		OnStop: func(context.Context) error {
			v.Stop()

			return nil
		},
	})

	return v
}

// PlayerParams holds dependencies for NewPlayerWithLifecycle.
type PlayerParams struct {
	fx.In
	Logger *zap.Logger
	Cfg    *config.Config
	LC     fx.Lifecycle
}

// NewPlayerWithLifecycle returns a nil Player when playback is disabled. A
// player that fails to start is logged and skipped rather than failing the
// application.
func NewPlayerWithLifecycle(p PlayerParams) Player {
	if p.Cfg.Playback.Command == DisabledCommand {
		p.Logger.Info("Local playback disabled")

		return nil
	}

	player := NewFFmpegPlayer(p.Logger, p.Cfg, audio.OpusSampleRate)

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the process outlives the start hook context
			if err := player.Start(context.Background()); err != nil {
				p.Logger.Warn("Local playback unavailable", zap.Error(err))
			}

			return nil
		},
		OnStop: func(context.Context) error {
			if err := player.Close(); err != nil {
				p.Logger.Warn("Playback process exited with error", zap.Error(err))
			}

			return nil
		},
	})

	return player
}

// ReceiverParams holds dependencies for NewReceiverFromParams.
type ReceiverParams struct {
	fx.In
	Logger     *zap.Logger
	Player     Player `optional:"true"`
	Visualizer *Visualizer
}

// NewReceiverFromParams creates a receiver decoding with Opus.
func NewReceiverFromParams(p ReceiverParams) *Receiver {
	return NewReceiver(p.Logger, nil, p.Player, p.Visualizer)
}
