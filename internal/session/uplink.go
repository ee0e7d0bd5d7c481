package session

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// SampleWriter is the subset of *webrtc.TrackLocalStaticSample the uplink uses.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// Uplink encodes captured PCM into the local audio track. A disabled uplink
// drops audio, which is how the microphone is muted.
type Uplink struct {
	logger        *zap.Logger
	track         SampleWriter
	encoder       audio.Encoder
	frameDuration time.Duration

	mu      sync.Mutex
	enabled bool
	pending []int16
	errors  int
}

// NewUplink creates a disabled uplink.
func NewUplink(logger *zap.Logger, track SampleWriter, encoder audio.Encoder, frameDuration time.Duration) *Uplink {
	return &Uplink{
		logger:        logger,
		track:         track,
		encoder:       encoder,
		frameDuration: frameDuration,
	}
}

// SetEnabled toggles sending. Disabling discards any partial frame.
func (u *Uplink) SetEnabled(enabled bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.enabled = enabled
	if !enabled {
		u.pending = u.pending[:0]
	}
}

// Enabled reports whether audio is being sent.
func (u *Uplink) Enabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.enabled
}

// HandleChunk implements capture.Sink.
func (u *Uplink) HandleChunk(c audio.Chunk) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.enabled {
		return
	}

	u.pending = append(u.pending, c.Samples()...)
	frame := u.encoder.FrameSamples()
	for len(u.pending) >= frame {
		packet, err := u.encoder.Encode(u.pending[:frame])
		u.pending = append(u.pending[:0], u.pending[frame:]...)
		if err != nil {
			u.countError("encode", err)

			continue
		}

		if err := u.track.WriteSample(media.Sample{Data: packet, Duration: u.frameDuration}); err != nil {
			u.countError("write", err)
		}
	}
}

// countError logs the first failure and then every hundredth, keeping the
// capture goroutine quiet when the track is gone.
func (u *Uplink) countError(stage string, err error) {
	u.errors++
	if u.errors == 1 || u.errors%100 == 0 {
		u.logger.Warn("Uplink frame dropped",
			zap.String("stage", stage),
			zap.Int("count", u.errors),
			zap.Error(err))
	}
}
