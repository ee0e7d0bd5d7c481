package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"layeh.com/gopus"
)

// Encoder turns one frame of interleaved PCM into an Opus packet.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	// FrameSamples is the number of interleaved samples Encode expects.
	FrameSamples() int
}

// Decoder turns an Opus packet into interleaved PCM.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)
	Channels() int
}

// OpusEncoder encodes fixed-size speech frames.
type OpusEncoder struct {
	mu        sync.Mutex
	enc       *gopus.Encoder
	frameSize int // samples per channel
	channels  int
}

// NewOpusEncoder creates a VoIP-tuned encoder for frames of the given duration.
func NewOpusEncoder(sampleRate, channels int, frameDuration time.Duration) (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	enc.SetBitrate(SpeechBitrate)

	return &OpusEncoder{
		enc:       enc,
		frameSize: int(int64(sampleRate) * int64(frameDuration) / int64(time.Second)),
		channels:  channels,
	}, nil
}

// FrameSamples implements Encoder.
func (e *OpusEncoder) FrameSamples() int {
	return e.frameSize * e.channels
}

// Encode implements Encoder.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.FrameSamples() {
		return nil, fmt.Errorf("need %d samples, got %d", e.FrameSamples(), len(pcm))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.enc.Encode(pcm, e.frameSize, MaxOpusPacketBytes)
}

// OpusDecoder decodes packets at a fixed output rate.
type OpusDecoder struct {
	mu       sync.Mutex
	dec      *gopus.Decoder
	channels int
}

// NewOpusDecoder creates a decoder producing PCM at sampleRate.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{dec: dec, channels: channels}, nil
}

// Channels implements Decoder.
func (d *OpusDecoder) Channels() int {
	return d.channels
}

// Decode implements Decoder.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, errors.New("opus payload empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pcm, err := d.dec.Decode(packet, OpusMaxFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	return pcm, nil
}
