package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 48000, settings.Audio.SampleRate)
	assert.Equal(t, 512, settings.Audio.BufferSize)
	assert.Equal(t, 2, settings.Audio.Channels)
	assert.Equal(t, 4096, settings.Buffers.ChunkSize)
	assert.InDelta(t, 64.0, settings.Buffers.CacheSizeMB, 0)
	assert.Equal(t, 5*time.Second, settings.Buffers.MonitorInterval)
	assert.Equal(t, 10*time.Millisecond, settings.Processor.WaitTimeout)
	assert.Equal(t, 1000, settings.Processor.HistorySize)
	assert.Equal(t, "wav", settings.Export.Format)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
audio:
  samplerate: 44100
  buffersize: 256
processor:
  waittimeout: 25ms
buffers:
  poolsize: 3
`)

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 256, settings.Audio.BufferSize)
	assert.Equal(t, 25*time.Millisecond, settings.Processor.WaitTimeout)
	assert.Equal(t, 3, settings.Buffers.PoolSize)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("RTAUDIO_AUDIO_SAMPLERATE", "96000")
	path := writeConfig(t, "debug: true\n")

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 96000, settings.Audio.SampleRate)
	assert.True(t, settings.Debug)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
audio:
  samplerate: 12345
  buffersize: 1000
`)

	_, err := LoadWith(viper.New(), path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadWith(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidBufferSize(t *testing.T) {
	t.Parallel()
	for _, n := range []int{64, 128, 256, 512, 1024, 2048, 4096} {
		assert.True(t, ValidBufferSize(n), n)
	}
	for _, n := range []int{0, -64, 32, 100, 1000, 8192} {
		assert.False(t, ValidBufferSize(n), n)
	}
}

func TestValidateSettingsDiagnosticsListen(t *testing.T) {
	t.Parallel()
	settings, err := LoadWith(viper.New(), writeConfig(t, "diagnostics:\n  enabled: true\n  listen: nope\n"))
	require.Error(t, err)
	assert.Nil(t, settings)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := writeConfig(t, "audio:\n  channels: 4\n")
	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, settings))
	assert.Contains(t, buf.String(), "channels: 4")

	out := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	reloaded, err := LoadWith(viper.New(), out)
	require.NoError(t, err)
	assert.Equal(t, settings, reloaded)
}
