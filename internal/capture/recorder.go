package capture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// Recorder keeps every captured chunk in memory and writes them out as a
// WAV file on Flush. Used for debugging what the microphone actually heard.
type Recorder struct {
	logger *zap.Logger
	dir    string
	prefix string

	mu         sync.Mutex
	pcm        bytes.Buffer
	sampleRate int
	channels   int
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(logger *zap.Logger, dir, prefix string) *Recorder {
	if prefix == "" {
		prefix = "capture"
	}

	return &Recorder{
		logger: logger.Named("recorder"),
		dir:    dir,
		prefix: prefix,
	}
}

// HandleChunk implements Sink.
func (r *Recorder) HandleChunk(c audio.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sampleRate = c.SampleRate
	r.channels = c.Channels
	r.pcm.Write(c.Data)
}

// Flush writes the buffered audio to a new WAV file and resets the buffer.
// It returns the file path, or "" when nothing was recorded.
func (r *Recorder) Flush() (string, error) {
	r.mu.Lock()
	pcm := bytes.Clone(r.pcm.Bytes())
	sampleRate, channels := r.sampleRate, r.channels
	r.pcm.Reset()
	r.mu.Unlock()

	if len(pcm) == 0 {
		return "", nil
	}
	if sampleRate <= 0 || channels <= 0 {
		return "", errors.New("recorder: unknown pcm format")
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("record dir: %w", err)
	}
	filename := filepath.Join(r.dir,
		fmt.Sprintf("%s_%s.wav", r.prefix, time.Now().Format("20060102_150405.000")))

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	if err := audio.WriteWAV(file, pcm, sampleRate, channels); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}

	samples := len(pcm) / 2 / channels
	r.logger.Info("Saved capture WAV",
		zap.String("file", filename),
		zap.Int("samples", samples),
		zap.Int("rate_hz", sampleRate),
		zap.Float64("duration_sec", float64(samples)/float64(sampleRate)))

	return filename, nil
}
