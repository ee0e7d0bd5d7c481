package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// Sink consumes captured chunks. HandleChunk runs on the capture goroutine
// and must return quickly.
type Sink interface {
	HandleChunk(c audio.Chunk)
}

// Capture pumps frames from a Source to its sinks.
type Capture struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	source  Source
	format  Format

	// sinks is replaced wholesale on Attach/Detach so the pump reads it
	// without locking.
	sinks atomic.Pointer[[]Sink]

	mu     sync.Mutex
	stream Stream
	done   chan struct{}
}

// NewCapture creates an idle capture service.
func NewCapture(logger *zap.Logger, cfg *config.Config, m *metrics.Metrics, source Source) *Capture {
	c := &Capture{
		logger:  logger.Named("capture"),
		metrics: m,
		source:  source,
		format: Format{
			SampleRate:    cfg.Capture.SampleRate,
			Channels:      cfg.Capture.Channels,
			FrameDuration: cfg.Capture.FrameDuration,
		},
	}
	c.sinks.Store(&[]Sink{})

	return c
}

// Format returns the PCM format chunks are delivered in.
func (c *Capture) Format() Format {
	return c.format
}

// RequestAccess asks the source whether the microphone can be used.
func (c *Capture) RequestAccess(ctx context.Context) error {
	return c.source.RequestAccess(ctx)
}

// Attach adds a sink. Attaching the same sink twice is a no-op.
func (c *Capture) Attach(s Sink) {
	for {
		old := c.sinks.Load()
		for _, existing := range *old {
			if existing == s {
				return
			}
		}
		next := make([]Sink, 0, len(*old)+1)
		next = append(next, *old...)
		next = append(next, s)
		if c.sinks.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Detach removes a sink.
func (c *Capture) Detach(s Sink) {
	for {
		old := c.sinks.Load()
		next := make([]Sink, 0, len(*old))
		for _, existing := range *old {
			if existing != s {
				next = append(next, existing)
			}
		}
		if c.sinks.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Running reports whether the pump is active.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stream != nil
}

// Start opens the source and launches the pump. Starting a running capture
// is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}

	// the stream lives until Stop, not until the caller's ctx
	stream, err := c.source.Open(context.WithoutCancel(ctx), c.format)
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}

	c.stream = stream
	c.done = make(chan struct{})
	go c.pump(stream, c.done)

	c.logger.Info("Microphone capture started",
		zap.Int("sample_rate", c.format.SampleRate),
		zap.Int("channels", c.format.Channels),
		zap.Duration("frame", c.format.FrameDuration))

	return nil
}

// Stop halts the source and waits for the pump to exit. Safe to call when
// not running.
func (c *Capture) Stop() error {
	c.mu.Lock()
	stream, done := c.stream, c.done
	c.stream, c.done = nil, nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Stop()
	<-done

	c.logger.Info("Microphone capture stopped")

	return err
}

func (c *Capture) pump(stream Stream, done chan struct{}) {
	defer close(done)

	for {
		frame, err := stream.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("Capture read failed", zap.Error(err))
			}
			c.release(stream)

			return
		}

		data, err := Normalize(frame)
		if err != nil {
			c.metrics.ChunksSkipped.Inc()

			continue
		}

		chunk := audio.Chunk{Data: data, SampleRate: c.format.SampleRate, Channels: c.format.Channels}
		for _, s := range *c.sinks.Load() {
			s.HandleChunk(chunk)
		}
	}
}

// release forgets a stream that ended without Stop, so the next Start opens
// a fresh one.
func (c *Capture) release(stream Stream) {
	c.mu.Lock()
	current := c.stream == stream
	if current {
		c.stream, c.done = nil, nil
	}
	c.mu.Unlock()

	if !current {
		return
	}

	if err := stream.Stop(); err != nil {
		c.logger.Warn("Capture source exited with error", zap.Error(err))
	}
	c.logger.Warn("Microphone capture ended unexpectedly")
}
