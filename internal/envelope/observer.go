package envelope

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// Event names as seen by the presentation layer.
const (
	InputEventName  = "RtcInputEnvelope"
	OutputEventName = "RtcOutputEnvelope"
)

// Event is one envelope delivery.
type Event struct {
	Name       string    `json:"event"`
	Envelope   []float64 `json:"envelope"`
	RMS        []float64 `json:"rms,omitempty"`
	SampleRate int       `json:"sr"`
	Channels   int       `json:"ch"`
}

// IsOutput reports whether the event describes played-back audio.
func (e Event) IsOutput() bool {
	return e.Name == OutputEventName
}

// Sink receives envelope events. Implementations must not block for long;
// they run on the observer worker or the playback tick.
type Sink interface {
	HandleEnvelope(ev Event)
}

// Observer owns the capture queue and fans computed envelopes out to sinks.
// Capture chunks go through the queue and a single worker; playback
// waveforms are computed synchronously on the caller.
type Observer struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	queue       *Queue
	blockCount  int
	outputScale float64

	mu            sync.Mutex
	sinks         []Sink
	playbackSinks []Sink
	subscribers   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewObserver creates an observer with an unsubscribed queue.
func NewObserver(logger *zap.Logger, cfg *config.Config, m *metrics.Metrics) *Observer {
	return &Observer{
		logger:      logger.Named("envelope"),
		metrics:     m,
		queue:       NewQueue(cfg.Envelope.QueueCapacity),
		blockCount:  cfg.Envelope.BlockCount,
		outputScale: cfg.Envelope.OutputScale,
	}
}

// AddSink registers an event consumer.
func (o *Observer) AddSink(s Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sinks = append(o.sinks, s)
}

// AddPlaybackSink registers a consumer of output envelopes that is not
// gated by subscription. Silence detection needs playback envelopes even
// when no presentation client is listening.
func (o *Observer) AddPlaybackSink(s Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.playbackSinks = append(o.playbackSinks, s)
}

// Subscribe registers one listener. The first listener opens the queue.
func (o *Observer) Subscribe() {
	o.mu.Lock()
	o.subscribers++
	first := o.subscribers == 1
	count := o.subscribers
	// the queue flag must change with the count; its lock is a leaf
	if first {
		o.queue.Subscribe()
	}
	o.mu.Unlock()

	o.metrics.Subscribers.Set(float64(count))
	if first {
		o.logger.Debug("Envelope queue subscribed")
	}
}

// Unsubscribe drops one listener. The last one closes and clears the queue.
func (o *Observer) Unsubscribe() {
	o.mu.Lock()
	if o.subscribers == 0 {
		o.mu.Unlock()

		return
	}
	o.subscribers--
	last := o.subscribers == 0
	count := o.subscribers
	if last {
		o.queue.Unsubscribe()
	}
	o.mu.Unlock()

	o.metrics.Subscribers.Set(float64(count))
	if last {
		o.metrics.QueueSize.Set(0)
		o.logger.Debug("Envelope queue unsubscribed and cleared")
	}
}

// Subscribed reports whether anyone is listening.
func (o *Observer) Subscribed() bool {
	return o.queue.Subscribed()
}

// HandleChunk is the capture-side entry point. It only enqueues.
func (o *Observer) HandleChunk(c audio.Chunk) {
	switch o.queue.Enqueue(c) {
	case Discarded:
		o.metrics.ChunksDiscarded.Inc()
	case QueuedWithEviction:
		o.metrics.ChunksEvicted.Inc()
		o.metrics.ChunksEnqueued.Inc()
	case Queued:
		o.metrics.ChunksEnqueued.Inc()
	}
}

// HandleWaveform computes a playback envelope from 8-bit unsigned waveform
// bytes. Playback sinks always receive it; regular sinks only while
// subscribed. Output envelopes are always mono.
func (o *Observer) HandleWaveform(waveform []byte, samplingRate int) {
	if len(waveform) == 0 {
		return
	}

	o.mu.Lock()
	internal := make([]Sink, len(o.playbackSinks))
	copy(internal, o.playbackSinks)
	o.mu.Unlock()

	subscribed := o.Subscribed()
	if len(internal) == 0 && !subscribed {
		return
	}

	ev := Event{
		Name:       OutputEventName,
		Envelope:   ComputeWaveform(waveform, o.blockCount, o.outputScale),
		SampleRate: samplingRate,
		Channels:   1,
	}
	for _, s := range internal {
		s.HandleEnvelope(ev)
	}
	if subscribed {
		o.emit(ev)
	}
}

// Flush drains the queue on the calling goroutine.
func (o *Observer) Flush() int {
	n := o.queue.Drain(o.computeInput)
	o.metrics.QueueSize.Set(float64(o.queue.Len()))

	return n
}

// Start launches the queue worker.
func (o *Observer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})

	go o.run(ctx)
}

// Stop terminates the worker and waits for it.
func (o *Observer) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
	o.cancel = nil
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.queue.Notify():
			o.Flush()
		}
	}
}

func (o *Observer) computeInput(c audio.Chunk) {
	samples := c.Samples()
	if len(samples) == 0 {
		o.metrics.ChunksSkipped.Inc()

		return
	}

	blocks := Compute(samples, o.blockCount)
	o.emit(Event{
		Name:       InputEventName,
		Envelope:   blocks.Peak,
		RMS:        blocks.RMS,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	})
}

func (o *Observer) emit(ev Event) {
	o.mu.Lock()
	sinks := make([]Sink, len(o.sinks))
	copy(sinks, o.sinks)
	o.mu.Unlock()

	for _, s := range sinks {
		s.HandleEnvelope(ev)
	}
	o.metrics.EnvelopesEmitted.WithLabelValues(ev.Name).Inc()
}
