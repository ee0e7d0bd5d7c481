// Package capture reads microphone audio and fans normalized PCM chunks out
// to attached sinks.
package capture

import (
	"errors"
	"fmt"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// ErrMalformedFrame is returned by Normalize for windows that do not fit
// their backing buffer.
var ErrMalformedFrame = errors.New("malformed capture frame")

// Frame is a raw buffer as handed over by a capture backend. The concrete
// variants are SampleFrame, ByteFrame and WindowFrame.
type Frame interface {
	isFrame()
}

// SampleFrame carries interleaved signed 16-bit samples.
type SampleFrame struct {
	Samples []int16
}

// ByteFrame carries 16-bit little-endian PCM bytes.
type ByteFrame struct {
	Data []byte
}

// WindowFrame is a view of Length bytes starting at Offset into Buffer.
type WindowFrame struct {
	Buffer []byte
	Offset int
	Length int
}

func (SampleFrame) isFrame() {}
func (ByteFrame) isFrame()   {}
func (WindowFrame) isFrame() {}

// Normalize converts any frame into a freshly allocated little-endian byte
// buffer. The result never aliases the frame, so the backend may reuse its
// buffer as soon as Normalize returns.
func Normalize(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case SampleFrame:
		return audio.PCMInt16ToLE(v.Samples), nil
	case ByteFrame:
		out := make([]byte, len(v.Data))
		copy(out, v.Data)

		return out, nil
	case WindowFrame:
		if v.Offset < 0 || v.Length < 0 || v.Offset+v.Length > len(v.Buffer) {
			return nil, fmt.Errorf("%w: window [%d:+%d] over %d bytes", ErrMalformedFrame, v.Offset, v.Length, len(v.Buffer))
		}
		out := make([]byte, v.Length)
		copy(out, v.Buffer[v.Offset:v.Offset+v.Length])

		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: unsupported frame %T", ErrMalformedFrame, f)
	}
}
