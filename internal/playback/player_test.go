package playback

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-rtc-translate/internal/config"
)

func TestFFmpegPlayer_WritesPCMToStdin(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.raw")
	script := filepath.Join(dir, "ffmpeg.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/usr/bin/env bash\ncat > \""+out+"\"\n"), 0o755))

	cfg := config.Default()
	cfg.Playback.Command = script
	p := NewFFmpegPlayer(zaptest.NewLogger(t), cfg, 48000)

	require.NoError(t, p.Write([]int16{1}), "writes before start are dropped")
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Write([]int16{1, -1}))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, data)
}

func TestFFmpegPlayer_ReportsFailedExit(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffmpeg.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/usr/bin/env bash\necho 'no sink' 1>&2\nexit 3\n"), 0o755))

	cfg := config.Default()
	cfg.Playback.Command = script
	p := NewFFmpegPlayer(zaptest.NewLogger(t), cfg, 48000)

	require.NoError(t, p.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)

	err := p.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sink")
}
