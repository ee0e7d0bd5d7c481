package capture

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied means the microphone cannot be opened.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Format describes the PCM a stream produces.
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// FrameBytes is the size of one frame of 16-bit PCM.
func (f Format) FrameBytes() int {
	samples := int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))

	return samples * f.Channels * 2
}

// Source is a microphone backend.
type Source interface {
	// RequestAccess checks that the device can be opened. It returns an
	// error wrapping ErrPermissionDenied when it cannot.
	RequestAccess(ctx context.Context) error
	Open(ctx context.Context, format Format) (Stream, error)
}

// Stream delivers frames until stopped. ReadFrame blocks and returns io.EOF
// once the backend is exhausted.
type Stream interface {
	ReadFrame() (Frame, error)
	Stop() error
}
