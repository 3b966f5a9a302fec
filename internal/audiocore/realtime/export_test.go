package realtime

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/export"
	"github.com/tphakala/rtaudio/internal/audiocore/sources"
	"github.com/tphakala/rtaudio/internal/errors"
)

func TestExportAudioPadsWithSilence(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)
	require.True(t, p.StartProcessing(t.Context()))

	for range 4 {
		require.True(t, p.ProcessInput(block(48000, 2, 512, 0.5)))
		pollOutput(t, p)
	}

	path := filepath.Join(t.TempDir(), "mix.wav")
	settings := export.DefaultSettings()
	settings.BitDepth = 16

	result, err := p.ExportAudio(t.Context(), path, 100*time.Millisecond, settings)
	require.NoError(t, err)
	assert.Equal(t, 4800, result.Frames)
	assert.Equal(t, 100*time.Millisecond, result.Duration)

	samples, info, err := sources.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	require.Equal(t, 4800, samples.Frames())
	assert.InDelta(t, 0.5, samples[0][0], 1e-3)
	assert.InDelta(t, 0.5, samples[1][2047], 1e-3)
	assert.InDelta(t, 0.0, samples[0][2048], 1e-9)
	assert.InDelta(t, 0.0, samples[1][4799], 1e-9)
}

func TestExportAudioKeepsLatestAudio(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) { c.CaptureSeconds = 0.02 }) // 960 frames
	require.True(t, p.StartProcessing(t.Context()))

	for i := range 3 {
		require.True(t, p.ProcessInput(block(48000, 2, 512, float32(i+1)*0.1)))
		pollOutput(t, p)
	}

	path := filepath.Join(t.TempDir(), "tail.wav")
	result, err := p.ExportAudio(t.Context(), path, 20*time.Millisecond, export.DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, 960, result.Frames)

	samples, _, err := sources.LoadFile(path)
	require.NoError(t, err)
	// 960 newest frames: 448 of the second block, then all of the third
	assert.InDelta(t, 0.2, samples[0][0], 1e-4)
	assert.InDelta(t, 0.2, samples[0][447], 1e-4)
	assert.InDelta(t, 0.3, samples[0][448], 1e-4)
	assert.InDelta(t, 0.3, samples[1][959], 1e-4)

	// exporting does not consume the capture
	again, err := p.ExportAudio(t.Context(), filepath.Join(t.TempDir(), "again.wav"), 20*time.Millisecond, export.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, result.Bytes, again.Bytes)
	assert.Equal(t, 960, p.capture.available())
}

func TestExportAudioWhileRunning(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) { c.InputQueueSize = 64 })
	require.True(t, p.StartProcessing(t.Context()))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			p.ProcessInput(block(48000, 2, 512, 0.1))
			p.GetOutput()
			time.Sleep(time.Millisecond)
		}
	})

	dir := t.TempDir()
	for i := range 5 {
		path := filepath.Join(dir, "live", fmt.Sprintf("take-%d.wav", i))
		_, err := p.ExportAudio(t.Context(), path, 50*time.Millisecond, export.DefaultSettings())
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestExportAudioRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	_, err := p.ExportAudio(t.Context(), filepath.Join(t.TempDir(), "x.wav"), 0, export.DefaultSettings())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	settings := export.DefaultSettings()
	settings.BitDepth = 20
	_, err = p.ExportAudio(t.Context(), filepath.Join(t.TempDir(), "x.wav"), time.Second, settings)
	require.Error(t, err)
}

func TestExportAudioWithoutCapture(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) { c.CaptureSeconds = 0 })

	path := filepath.Join(t.TempDir(), "silence.wav")
	result, err := p.ExportAudio(t.Context(), path, 10*time.Millisecond, export.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 480, result.Frames)

	samples, _, err := sources.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, audiocore.NewBlock(2, 480), samples)
}
