// Package audio holds PCM helpers and the Opus codec wrappers.
package audio

import (
	"encoding/binary"
)

// Chunk is one owned buffer of 16-bit little-endian PCM.
type Chunk struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Samples decodes the chunk payload.
func (c Chunk) Samples() []int16 {
	return LEToPCMInt16(c.Data)
}

// PCMInt16ToLE converts int16 samples to raw little-endian bytes.
func PCMInt16ToLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}

	return out
}

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples.
// A trailing odd byte is ignored.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}

	return out
}

// Downmix averages interleaved frames into mono.
func Downmix(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}

	n := len(interleaved) / channels
	dst := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(interleaved[i*channels+c])
		}
		dst[i] = int16(sum / int32(channels))
	}

	return dst
}

// ToWaveform converts signed samples into 8-bit unsigned waveform bytes
// centered on 128, the layout platform visualizers report.
func ToWaveform(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = byte(int(s>>8) + WaveformMidpoint)
	}

	return out
}
