package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// DisabledCommand turns local playback off.
const DisabledCommand = "none"

const playerStopGrace = 1200 * time.Millisecond

// Player consumes decoded mono PCM for local output.
type Player interface {
	Write(samples []int16) error
}

// FFmpegPlayer feeds s16le PCM to an ffmpeg output device through stdin.
type FFmpegPlayer struct {
	logger       *zap.Logger
	command      string
	outputFormat string
	outputDevice string
	sampleRate   int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	wait   chan error
}

// NewFFmpegPlayer creates a player for mono PCM at sampleRate.
func NewFFmpegPlayer(logger *zap.Logger, cfg *config.Config, sampleRate int) *FFmpegPlayer {
	return &FFmpegPlayer{
		logger:       logger.Named("ffmpeg_player"),
		command:      cfg.Playback.Command,
		outputFormat: cfg.Playback.OutputFormat,
		outputDevice: cfg.Playback.OutputDevice,
		sampleRate:   sampleRate,
	}
}

// Start launches ffmpeg. Starting twice is a no-op.
func (p *FFmpegPlayer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
		"-f", p.outputFormat,
		p.outputDevice,
	)
	// -nostdin only stops ffmpeg reading commands; pipe:0 still carries audio.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	wait := make(chan error, 1)
	go func() {
		wait <- cmd.Wait()
		close(wait)
	}()

	p.cmd, p.stdin, p.stderr, p.wait = cmd, stdin, &stderr, wait
	p.logger.Info("Playback process started", zap.Int("pid", cmd.Process.Pid))

	return nil
}

// Write implements Player. Writes before Start are dropped.
func (p *FFmpegPlayer) Write(samples []int16) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()

	if stdin == nil || len(samples) == 0 {
		return nil
	}

	_, err := stdin.Write(audio.PCMInt16ToLE(samples))

	return err
}

// Close ends playback, letting ffmpeg flush before it is killed.
func (p *FFmpegPlayer) Close() error {
	p.mu.Lock()
	cmd, stdin, stderr, wait := p.cmd, p.stdin, p.stderr, p.wait
	p.cmd, p.stdin, p.stderr, p.wait = nil, nil, nil, nil
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}

	_ = stdin.Close()

	select {
	case err := <-wait:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg playback exited: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}

		return err
	case <-time.After(playerStopGrace):
	}

	// ffmpeg did not drain in time; a signalled exit is expected from here on.
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-wait:
	case <-time.After(playerStopGrace):
		_ = cmd.Process.Kill()
		<-wait
	}

	return nil
}
