package capture_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-rtc-translate/internal/capture"
	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

type fakeStream struct {
	frames  chan capture.Frame
	stopped chan struct{}
	once    sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan capture.Frame, 16), stopped: make(chan struct{})}
}

func (s *fakeStream) ReadFrame() (capture.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.stopped:
		return nil, io.EOF
	}
}

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.stopped) })

	return nil
}

type fakeSource struct {
	stream    *fakeStream
	accessErr error
	openErr   error
	opened    int
}

func (s *fakeSource) RequestAccess(context.Context) error { return s.accessErr }

func (s *fakeSource) Open(context.Context, capture.Format) (capture.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++

	return s.stream, nil
}

type chunkSink struct {
	mu     sync.Mutex
	chunks []audio.Chunk
}

func (s *chunkSink) HandleChunk(c audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
}

func (s *chunkSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.chunks)
}

func newTestCapture(t *testing.T, src capture.Source) (*capture.Capture, *metrics.Metrics) {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())

	return capture.NewCapture(zaptest.NewLogger(t), config.Default(), m, src), m
}

func TestCapture_FanOut(t *testing.T) {
	stream := newFakeStream()
	c, m := newTestCapture(t, &fakeSource{stream: stream})

	a, b := &chunkSink{}, &chunkSink{}
	c.Attach(a)
	c.Attach(b)
	c.Attach(a)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Running())

	stream.frames <- capture.SampleFrame{Samples: []int16{1, 2}}
	stream.frames <- capture.WindowFrame{Buffer: []byte{1}, Offset: 0, Length: 5}
	stream.frames <- capture.ByteFrame{Data: []byte{3, 0}}

	require.Eventually(t, func() bool { return a.len() == 2 && b.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ChunksSkipped), 0)

	a.mu.Lock()
	first := a.chunks[0]
	a.mu.Unlock()
	assert.Equal(t, 48000, first.SampleRate)
	assert.Equal(t, 1, first.Channels)
	assert.Equal(t, []int16{1, 2}, first.Samples())

	require.NoError(t, c.Stop())
	assert.False(t, c.Running())
	require.NoError(t, c.Stop())
}

func TestCapture_Detach(t *testing.T) {
	stream := newFakeStream()
	c, _ := newTestCapture(t, &fakeSource{stream: stream})

	kept, removed := &chunkSink{}, &chunkSink{}
	c.Attach(kept)
	c.Attach(removed)
	c.Detach(removed)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	stream.frames <- capture.ByteFrame{Data: []byte{0, 0}}
	require.Eventually(t, func() bool { return kept.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, removed.len())
}

func TestCapture_StartIsIdempotent(t *testing.T) {
	src := &fakeSource{stream: newFakeStream()}
	c, _ := newTestCapture(t, src)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, src.opened)
	require.NoError(t, c.Stop())
}

func TestCapture_RestartsAfterSourceExit(t *testing.T) {
	first := newFakeStream()
	src := &fakeSource{stream: first}
	c, _ := newTestCapture(t, src)
	sink := &chunkSink{}
	c.Attach(sink)

	require.NoError(t, c.Start(context.Background()))

	// the source dies on its own, as ffmpeg does when the device goes away
	require.NoError(t, first.Stop())
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 5*time.Millisecond)

	second := newFakeStream()
	src.stream = second
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, 2, src.opened)
	assert.True(t, c.Running())

	second.frames <- capture.ByteFrame{Data: []byte{1, 0}}
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCapture_OpenError(t *testing.T) {
	c, _ := newTestCapture(t, &fakeSource{openErr: errors.New("busy")})

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
	assert.False(t, c.Running())
}

func TestCapture_RequestAccess(t *testing.T) {
	denied := &fakeSource{accessErr: capture.ErrPermissionDenied}
	c, _ := newTestCapture(t, denied)
	assert.ErrorIs(t, c.RequestAccess(context.Background()), capture.ErrPermissionDenied)
}

func TestFormat_FrameBytes(t *testing.T) {
	tests := map[string]struct {
		format capture.Format
		want   int
	}{
		"48k mono 20ms":   {capture.Format{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond}, 1920},
		"16k stereo 10ms": {capture.Format{SampleRate: 16000, Channels: 2, FrameDuration: 10 * time.Millisecond}, 640},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.format.FrameBytes())
		})
	}
}
