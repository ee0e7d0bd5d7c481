package capture_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-rtc-translate/internal/capture"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

func TestRecorder_Flush(t *testing.T) {
	dir := t.TempDir()
	rec := capture.NewRecorder(zaptest.NewLogger(t), dir, "")

	path, err := rec.Flush()
	require.NoError(t, err)
	assert.Empty(t, path, "nothing recorded yet")

	rec.HandleChunk(audio.Chunk{Data: []byte{1, 0, 2, 0}, SampleRate: 16000, Channels: 1})
	rec.HandleChunk(audio.Chunk{Data: []byte{3, 0}, SampleRate: 16000, Channels: 1})

	path, err = rec.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44+6)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, data[44:])

	path, err = rec.Flush()
	require.NoError(t, err)
	assert.Empty(t, path, "buffer resets after flush")
}
