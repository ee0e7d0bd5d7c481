package envelope

import "go.uber.org/fx"

// Module provides the envelope observer.
var Module = fx.Module("envelope",
	fx.Provide(NewObserver),
)
