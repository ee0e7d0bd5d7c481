// Package envelope turns captured and played-back audio into fixed-size
// amplitude envelopes for visualization and silence detection.
package envelope

import (
	"math"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// DefaultBlockCount is the number of envelope values per chunk.
const DefaultBlockCount = 8

// DefaultOutputScale attenuates playback envelopes.
const DefaultOutputScale = 0.5

// Blocks is the per-segment summary of one chunk.
type Blocks struct {
	// Peak holds max(|s|) per segment, normalized to [0,1]. This is the published envelope.
	Peak []float64
	// RMS holds the root mean square per segment on the same scale.
	RMS []float64
}

// Len returns the number of segments.
func (b Blocks) Len() int {
	return len(b.Peak)
}

// segment is a half-open sample range.
type segment struct{ start, end int }

// partition splits total samples into at most blockCount contiguous segments
// of max(1, total/blockCount) samples; the last segment takes the remainder.
func partition(total, blockCount int) []segment {
	if total <= 0 || blockCount <= 0 {
		return nil
	}

	segLen := max(1, total/blockCount)
	count := min(blockCount, total)

	segs := make([]segment, count)
	for i := range segs {
		segs[i] = segment{start: i * segLen, end: (i + 1) * segLen}
	}
	segs[count-1].end = total

	return segs
}

// Compute summarizes signed 16-bit samples. Empty input yields empty Blocks.
func Compute(samples []int16, blockCount int) Blocks {
	segs := partition(len(samples), blockCount)
	if len(segs) == 0 {
		return Blocks{}
	}

	out := Blocks{
		Peak: make([]float64, len(segs)),
		RMS:  make([]float64, len(segs)),
	}
	for i, seg := range segs {
		var maxAbs int
		var sumSq float64
		for _, s := range samples[seg.start:seg.end] {
			v := int(s)
			if v < 0 {
				v = -v
			}
			if v > maxAbs {
				maxAbs = v
			}
			sumSq += float64(s) * float64(s)
		}
		out.Peak[i] = float64(maxAbs) / audio.PCM16FullScale
		out.RMS[i] = math.Sqrt(sumSq/float64(seg.end-seg.start)) / audio.PCM16FullScale
	}

	return out
}

// ComputeWaveform summarizes 8-bit unsigned waveform bytes: each byte is
// centered as (b-128)/128 and every segment publishes max(|v|)*scale.
func ComputeWaveform(waveform []byte, blockCount int, scale float64) []float64 {
	segs := partition(len(waveform), blockCount)
	if len(segs) == 0 {
		return nil
	}

	out := make([]float64, len(segs))
	for i, seg := range segs {
		var peak float64
		for _, b := range waveform[seg.start:seg.end] {
			v := math.Abs(float64(int(b)-audio.WaveformMidpoint)) / audio.WaveformMidpoint
			if v > peak {
				peak = v
			}
		}
		out[i] = peak * scale
	}

	return out
}
