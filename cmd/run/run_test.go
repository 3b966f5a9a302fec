package run

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/device"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Audio = conf.AudioSettings{SampleRate: 48000, BufferSize: 256, Channels: 2}
	s.Buffers = conf.BufferSettings{PoolSize: 2, MonitorInterval: 50 * time.Millisecond}
	s.Processor = conf.ProcessorSettings{InputQueue: 8, OutputQueue: 8, CaptureSecs: 1}
	s.Export = conf.ExportSettings{Format: "wav", BitDepth: 16, Bitrate: "192k", FfmpegPath: "ffmpeg", Timeout: time.Second}
	return s
}

func TestRunTone(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "tone.wav")
	err := Run(t.Context(), &out, testSettings(), Options{
		Duration:       200 * time.Millisecond,
		Frequency:      440,
		Amplitude:      0.5,
		Gain:           0.5,
		ExportPath:     path,
		ReportInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "processing 48000 Hz, 2 channels, 256 frame blocks")
	assert.Contains(t, text, "Summary:")
	assert.Contains(t, text, "meter master:")
	assert.Contains(t, text, "exported "+path)
	assert.FileExists(t, path)
	assert.NotContains(t, text, "processed blocks:    0\n")
}

func TestRunRejectsBufferSize(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Audio.BufferSize = 500

	var out bytes.Buffer
	err := Run(t.Context(), &out, settings, Options{Duration: 10 * time.Millisecond, Gain: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrConfiguration)
	assert.Empty(t, out.String())
}

func TestRunRejectsGain(t *testing.T) {
	t.Parallel()

	err := Run(t.Context(), &bytes.Buffer{}, testSettings(), Options{Duration: 10 * time.Millisecond, Gain: -1})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRunWithDiagnostics(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Diagnostics = conf.DiagnosticsSettings{Enabled: true, Listen: "127.0.0.1:0"}

	var out bytes.Buffer
	err := Run(t.Context(), &out, settings, Options{Duration: 50 * time.Millisecond, Gain: 1})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "diagnostics on http://127.0.0.1:")
}

func TestReporterWarnsOnNewUnderruns(t *testing.T) {
	t.Parallel()

	p, err := realtime.NewProcessor(realtime.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	var out bytes.Buffer
	r := newReporter(&out, p, time.Second)
	start := r.last

	r.maybe(start.Add(time.Second))
	assert.NotContains(t, out.String(), "warning")

	require.True(t, p.StartProcessing(t.Context()))
	assert.Nil(t, p.GetOutput())

	out.Reset()
	r.maybe(start.Add(1500 * time.Millisecond))
	assert.Empty(t, out.String(), "interval not reached")

	r.maybe(start.Add(2 * time.Second))
	assert.Contains(t, out.String(), "warning: degraded performance, 1 new underruns")

	out.Reset()
	r.maybe(start.Add(3 * time.Second))
	assert.True(t, strings.HasPrefix(out.String(), "processed=0 underruns=1"))
	assert.NotContains(t, out.String(), "warning")
}

func TestPrintDevices(t *testing.T) {
	t.Parallel()

	list := func(deviceType malgo.DeviceType) ([]device.Info, error) {
		if deviceType == malgo.Capture {
			return []device.Info{
				{Index: 0, Name: "USB Mic", ID: "hw:1,0", IsDefault: true},
				{Index: 1, Name: "Line In", ID: "hw:2,0"},
			}, nil
		}
		return nil, nil
	}

	var out bytes.Buffer
	require.NoError(t, printDevices(&out, list))
	assert.Equal(t, "capture devices:\n *0: USB Mic (hw:1,0)\n  1: Line In (hw:2,0)\nplayback devices:\n  none\n", out.String())
}

func TestPrintDevicesPropagatesError(t *testing.T) {
	t.Parallel()

	failure := errors.Newf("backend unavailable").Category(errors.CategoryDevice).Build()
	list := func(malgo.DeviceType) ([]device.Info, error) { return nil, failure }

	var out bytes.Buffer
	require.ErrorIs(t, printDevices(&out, list), failure)
	assert.Empty(t, out.String())
}

func TestDeviceStartFailedHintsListDevices(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	missing := errors.Newf("no matching audio device found").Category(errors.CategoryNotFound).Build()
	require.ErrorIs(t, deviceStartFailed(&out, missing), missing)
	assert.Contains(t, out.String(), "--list-devices")

	out.Reset()
	other := errors.Newf("device busy").Category(errors.CategoryDevice).Build()
	require.ErrorIs(t, deviceStartFailed(&out, other), other)
	assert.Empty(t, out.String())
}
