package metrics

import "go.uber.org/fx"

// Module provides the process-wide metrics registry.
var Module = fx.Module("metrics",
	fx.Provide(NewDefault),
)
