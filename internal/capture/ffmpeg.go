package capture

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
)

const (
	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
	probeTimeout = 5 * time.Second
)

// FFmpegSource captures PCM by piping an ffmpeg input device to stdout.
type FFmpegSource struct {
	logger      *zap.Logger
	command     string
	inputFormat string
	inputDevice string
}

// NewFFmpegSource creates a source from the capture config.
func NewFFmpegSource(logger *zap.Logger, cfg *config.Config) *FFmpegSource {
	command := cfg.Capture.Command
	if command == "" {
		command = "ffmpeg"
	}

	return &FFmpegSource{
		logger:      logger.Named("ffmpeg_capture"),
		command:     command,
		inputFormat: cfg.Capture.InputFormat,
		inputDevice: cfg.Capture.InputDevice,
	}
}

// RequestAccess implements Source by opening the device for a few
// milliseconds and discarding the output.
func (s *FFmpegSource) RequestAccess(ctx context.Context) error {
	if _, err := exec.LookPath(s.command); err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", s.inputFormat,
		"-i", s.inputDevice,
		"-t", "0.05",
		"-f", "null",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %w: %s", ErrPermissionDenied, err, trimSpace(stderr.String()))
	}

	return nil
}

// Open implements Source.
func (s *FFmpegSource) Open(ctx context.Context, format Format) (Stream, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.inputFormat,
		"-i", s.inputDevice,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimSpace(stderr.String()))
		}

		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}

	s.logger.Debug("Capture process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels))

	frameBytes := format.FrameBytes()
	if frameBytes <= 0 {
		frameBytes = 4096
	}

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		buf:     make([]byte, frameBytes),
	}, nil
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	// buf is reused across reads; Normalize copies before anything keeps it.
	buf []byte

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) ReadFrame() (Frame, error) {
	n, err := io.ReadFull(s.stdout, s.buf)
	if n > 0 {
		return ByteFrame{Data: s.buf[:n]}, nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}

	return nil, err
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimSpace(s.stderr.String()))
		}
	})

	return s.stopErr
}

// normalizeStopErr treats a non-zero exit after our interrupt as a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}

	return err
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}

	return string(bytes.TrimSpace([]byte(input)))
}
