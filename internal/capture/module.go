package capture

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
)

// Module provides the microphone capture service.
var Module = fx.Module("capture",
	fx.Provide(
		fx.Annotate(NewFFmpegSource, fx.As(new(Source))),
		NewCapture,
		NewRecorderFromConfig,
	),
)

// NewRecorderFromConfig returns nil when capture.record_dir is unset.
func NewRecorderFromConfig(logger *zap.Logger, cfg *config.Config) *Recorder {
	if cfg.Capture.RecordDir == "" {
		return nil
	}

	return NewRecorder(logger, cfg.Capture.RecordDir, "capture")
}
