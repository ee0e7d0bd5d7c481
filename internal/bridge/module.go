package bridge

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/turn"
)

// Module provides the websocket hub and the control server.
var Module = fx.Module("bridge",
	fx.Provide(
		NewHubFromParams,
		NewServerWithLifecycle,
	),
)

// HubParams holds dependencies for NewHubFromParams.
type HubParams struct {
	fx.In
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Observer    *envelope.Observer
	Coordinator *turn.Coordinator
}

// NewHubFromParams creates the hub and registers it for envelopes and
// state snapshots.
func NewHubFromParams(p HubParams) *Hub {
	hub := NewHub(p.Logger, p.Metrics, p.Observer, p.Coordinator)
	p.Observer.AddSink(hub)
	p.Coordinator.AddListener(hub)

	return hub
}

// ServerParams holds dependencies for NewServerWithLifecycle.
type ServerParams struct {
	fx.In
	Logger      *zap.Logger
	Cfg         *config.Config
	Metrics     *metrics.Metrics
	Hub         *Hub
	Machine     *session.Machine
	Coordinator *turn.Coordinator
	LC          fx.Lifecycle
}

// NewServerWithLifecycle binds the server to the application lifecycle.
func NewServerWithLifecycle(p ServerParams) *Server {
	s := NewServer(p.Logger, p.Metrics, p.Hub, p.Machine, p.Coordinator, p.Cfg.Bridge.Address, p.Cfg.Backend.DevReset)

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})

	return s
}
