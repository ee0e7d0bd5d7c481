// Package playback decodes the remote translated audio, plays it locally and
// reports 8-bit waveform snapshots of it at a fixed rate.
package playback

import (
	"bytes"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// WaveformHandler receives one waveform snapshot per tick.
type WaveformHandler interface {
	HandleWaveform(waveform []byte, samplingRate int)
}

// Visualizer turns decoded playback PCM into periodic waveform snapshots.
// Each tick reports the most recent captureSize bytes written since the
// previous tick, or a silent window when nothing was played.
type Visualizer struct {
	logger       *zap.Logger
	handler      WaveformHandler
	captureSize  int
	interval     time.Duration
	samplingRate int

	mu      sync.Mutex
	pending []byte

	stop chan struct{}
	done chan struct{}
}

// NewVisualizer creates a stopped visualizer.
func NewVisualizer(logger *zap.Logger, cfg *config.Config, handler WaveformHandler) *Visualizer {
	rate := cfg.Playback.RateHz
	if rate <= 0 {
		rate = 10
	}

	return &Visualizer{
		logger:       logger.Named("visualizer"),
		handler:      handler,
		captureSize:  cfg.Playback.CaptureSize,
		interval:     time.Second / time.Duration(rate),
		samplingRate: audio.OpusSampleRate,
	}
}

// Write records played samples. Only the newest captureSize are kept.
func (v *Visualizer) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}

	wave := audio.ToWaveform(samples)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.pending = append(v.pending, wave...)
	if over := len(v.pending) - v.captureSize; over > 0 {
		v.pending = append(v.pending[:0], v.pending[over:]...)
	}
}

// Tick emits one snapshot immediately.
func (v *Visualizer) Tick() {
	v.mu.Lock()
	wave := v.pending
	v.pending = nil
	v.mu.Unlock()

	if len(wave) == 0 {
		wave = bytes.Repeat([]byte{audio.WaveformMidpoint}, v.captureSize)
	}

	v.handler.HandleWaveform(wave, v.samplingRate)
}

// Start begins ticking. Calling Start twice without Stop is a no-op.
func (v *Visualizer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stop != nil {
		return
	}
	v.stop = make(chan struct{})
	v.done = make(chan struct{})

	go v.run(v.stop, v.done)
	v.logger.Debug("Visualizer started", zap.Duration("interval", v.interval))
}

// Stop halts ticking and waits for the loop to exit.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	stop, done := v.stop, v.done
	v.stop, v.done = nil, nil
	v.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (v *Visualizer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.Tick()
		}
	}
}
