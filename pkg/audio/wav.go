package audio

import (
	"encoding/binary"
	"errors"
	"io"
)

// WriteWAV writes 16-bit little-endian PCM as a RIFF/WAVE stream.
func WriteWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	if len(pcm) == 0 {
		return errors.New("wav: empty pcm payload")
	}
	if sampleRate <= 0 || channels <= 0 {
		return errors.New("wav: invalid format")
	}

	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := uint32(len(pcm))

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		dataSize + 36, // RIFF size excludes the first 8 bytes
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // PCM header size
		uint16(1),  // PCM format
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	_, err := w.Write(pcm)

	return err
}
