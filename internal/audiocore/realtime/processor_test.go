package realtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/processors"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
)

const waitFor = 2 * time.Second

func newProcessor(t *testing.T, modify func(*Config)) *Processor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CaptureSeconds = 1
	if modify != nil {
		modify(&cfg)
	}
	p, err := NewProcessor(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// block returns AudioData filled with value
func block(sampleRate, channels, frames int, value float32) *audiocore.AudioData {
	samples := audiocore.NewBlock(channels, frames)
	for ch := range samples {
		for i := range samples[ch] {
			samples[ch][i] = value
		}
	}
	return &audiocore.AudioData{
		Samples:   samples,
		Format:    audiocore.AudioFormat{SampleRate: sampleRate, Channels: channels, BitDepth: 32, Encoding: audiocore.EncodingF32},
		Timestamp: time.Now(),
	}
}

// pollOutput polls GetOutput until a block arrives
func pollOutput(t *testing.T, p *Processor) *audiocore.AudioData {
	t.Helper()
	var out *audiocore.AudioData
	require.Eventually(t, func() bool {
		out = p.GetOutput()
		return out != nil
	}, waitFor, time.Millisecond)
	return out
}

// scriptedProcessor fails or panics on chosen sequence numbers
type scriptedProcessor struct {
	failOn  uint64
	panicOn uint64
}

func (s *scriptedProcessor) ID() string          { return "scripted" }
func (s *scriptedProcessor) LatencySamples() int { return 0 }
func (s *scriptedProcessor) Process(_ context.Context, in *audiocore.AudioData) (*audiocore.AudioData, error) {
	switch in.Sequence {
	case s.failOn:
		return nil, errors.NewStd("render failed")
	case s.panicOn:
		panic("plugin bug")
	}
	return in, nil
}

// slowProcessor blocks until released
type slowProcessor struct {
	release chan struct{}
	calls   atomic.Int64
}

func (s *slowProcessor) ID() string          { return "slow" }
func (s *slowProcessor) LatencySamples() int { return 0 }
func (s *slowProcessor) Process(ctx context.Context, in *audiocore.AudioData) (*audiocore.AudioData, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return in, nil
}

func TestEndToEndProcessing(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) {
		c.SampleRate = 44100
		c.BufferSize = 512
	})

	require.True(t, p.StartProcessing(t.Context()))
	require.True(t, p.ProcessInput(block(44100, 2, 512, 0.25)))

	out := pollOutput(t, p)
	assert.Equal(t, 2, out.Samples.Channels())
	assert.Equal(t, 512, out.Frames())

	stats := p.GetPerformanceStats()
	assert.Equal(t, int64(1), stats.ProcessedBuffers)
	require.Len(t, stats.ProcessTimeSamples, 1)
	assert.GreaterOrEqual(t, stats.MaxProcessTimeMS, stats.ProcessTimeSamples[0])
}

func TestConfigureBufferSize(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	for _, size := range []int{1000, 8192, 0, -512, 32, 63, 4095, 6144} {
		err := p.ConfigureBufferSize(size)
		require.Error(t, err, "size %d", size)
		assert.ErrorIs(t, err, audiocore.ErrConfiguration)
		assert.Equal(t, 512, p.BufferSize())
	}

	for size := conf.MinBufferSize; size <= conf.MaxBufferSize; size *= 2 {
		require.NoError(t, p.ConfigureBufferSize(size))
		assert.Equal(t, size, p.BufferSize())
	}
}

func TestConfigureSampleRate(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	for _, rate := range []int{8000, 16000, 32000, 44000, 0, -48000, 384000} {
		err := p.ConfigureSampleRate(rate)
		require.Error(t, err, "rate %d", rate)
		assert.ErrorIs(t, err, audiocore.ErrConfiguration)
		assert.Equal(t, 48000, p.SampleRate())
	}

	for _, rate := range conf.SupportedSampleRates {
		require.NoError(t, p.ConfigureSampleRate(rate))
		assert.Equal(t, rate, p.SampleRate())
	}
}

func TestConfigureChannels(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	require.ErrorIs(t, p.ConfigureChannels(0), audiocore.ErrConfiguration)
	require.ErrorIs(t, p.ConfigureChannels(conf.MaxChannels+1), audiocore.ErrConfiguration)
	assert.Equal(t, 2, p.Channels())

	require.NoError(t, p.ConfigureChannels(8))
	assert.Equal(t, 8, p.Channels())
	assert.True(t, p.ProcessInput(block(48000, 8, 512, 0)))
	assert.False(t, p.ProcessInput(block(48000, 2, 512, 0)))
}

func TestNewProcessorRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"buffer size", func(c *Config) { c.BufferSize = 1000 }},
		{"sample rate", func(c *Config) { c.SampleRate = 12345 }},
		{"channels", func(c *Config) { c.Channels = 0 }},
		{"latency", func(c *Config) { c.InputLatencySamples = -1 }},
		{"capture", func(c *Config) { c.CaptureSeconds = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := NewProcessor(cfg)
			require.ErrorIs(t, err, audiocore.ErrConfiguration)
		})
	}
}

func TestLatencyForAllSupportedFormats(t *testing.T) {
	t.Parallel()

	delay, err := processors.NewDelayProcessor("lookahead", 64)
	require.NoError(t, err)
	chain, err := processors.NewChain(delay)
	require.NoError(t, err)

	p := newProcessor(t, func(c *Config) {
		c.Chain = chain
		c.InputLatencySamples = 32
		c.OutputLatencySamples = 16
	})

	for size := conf.MinBufferSize; size <= conf.MaxBufferSize; size *= 2 {
		for _, rate := range conf.SupportedSampleRates {
			t.Run(fmt.Sprintf("%d@%d", size, rate), func(t *testing.T) {
				require.NoError(t, p.ConfigureBufferSize(size))
				require.NoError(t, p.ConfigureSampleRate(rate))

				info := p.CalculateSystemLatency()
				assert.Equal(t, size, info.BufferSize)
				assert.Equal(t, rate, info.SampleRate)
				assert.InDelta(t, float64(size)/float64(rate)*1000, info.BufferLatencyMS, 1e-9)
				assert.Equal(t, info.InputLatencySamples+info.OutputLatencySamples+info.PluginLatencySamples,
					info.TotalLatencySamples)
				assert.Equal(t, 64, info.PluginLatencySamples)
				assert.Equal(t, size+32, info.InputLatencySamples)
				assert.InDelta(t, float64(info.TotalLatencySamples)/float64(rate)*1000, info.TotalLatencyMS, 1e-9)
				assert.Equal(t, info, p.GetLatencyInfo())
			})
		}
	}
}

func TestProcessInputRejectsMismatch(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	malformed := block(48000, 2, 512, 0)
	malformed.Samples[1] = malformed.Samples[1][:100]

	tests := []struct {
		name string
		data *audiocore.AudioData
	}{
		{"nil", nil},
		{"sample rate", block(44100, 2, 512, 0)},
		{"channels", block(48000, 1, 512, 0)},
		{"frames", block(48000, 2, 256, 0)},
		{"malformed", malformed},
	}

	for _, tt := range tests {
		assert.False(t, p.ProcessInput(tt.data), tt.name)
	}
	in, _ := p.QueueDepths()
	assert.Zero(t, in)
	assert.Zero(t, p.GetPerformanceStats().DroppedInputs)
}

func TestProcessInputBackpressure(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) { c.InputQueueSize = 2 })

	assert.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	assert.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	assert.False(t, p.ProcessInput(block(48000, 2, 512, 0)))
	assert.Equal(t, int64(1), p.GetPerformanceStats().DroppedInputs)
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	p.StopProcessing()
	assert.False(t, p.IsProcessing())

	require.True(t, p.StartProcessing(t.Context()))
	assert.False(t, p.StartProcessing(t.Context()))
	assert.True(t, p.IsProcessing())

	p.StopProcessing()
	p.StopProcessing()
	assert.False(t, p.IsProcessing())

	require.True(t, p.StartProcessing(t.Context()))
	assert.True(t, p.IsProcessing())
}

func TestStopDiscardsQueuedBlocks(t *testing.T) {
	t.Parallel()

	slow := &slowProcessor{release: make(chan struct{})}
	chain, err := processors.NewChain(slow)
	require.NoError(t, err)
	p := newProcessor(t, func(c *Config) { c.Chain = chain })

	require.True(t, p.StartProcessing(t.Context()))
	for range 4 {
		require.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	}
	require.Eventually(t, func() bool { return slow.calls.Load() == 1 }, waitFor, time.Millisecond)

	p.StopProcessing()

	in, out := p.QueueDepths()
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Nil(t, p.GetOutput())
	assert.Equal(t, int64(1), slow.calls.Load())
}

func TestParentContextStopsLoop(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	require.True(t, p.StartProcessing(ctx))
	cancel()

	require.Eventually(t, func() bool { return !p.IsProcessing() }, waitFor, time.Millisecond)

	require.True(t, p.StartProcessing(t.Context()))
	require.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	pollOutput(t, p)
}

func TestChainFailuresAreContained(t *testing.T) {
	t.Parallel()

	chain, err := processors.NewChain(&scriptedProcessor{failOn: 1, panicOn: 2})
	require.NoError(t, err)
	p := newProcessor(t, func(c *Config) { c.Chain = chain })

	require.True(t, p.StartProcessing(t.Context()))
	for seq := range uint64(4) {
		data := block(48000, 2, 512, 0)
		data.Sequence = seq
		require.True(t, p.ProcessInput(data))
	}

	require.Eventually(t, func() bool {
		return p.GetPerformanceStats().ProcessedBuffers == 2
	}, waitFor, time.Millisecond)

	stats := p.GetPerformanceStats()
	assert.Equal(t, int64(2), stats.ProcessingFailures)
	assert.GreaterOrEqual(t, stats.Xruns, int64(2))
	assert.True(t, p.IsProcessing())

	assert.Equal(t, uint64(0), pollOutput(t, p).Sequence)
	assert.Equal(t, uint64(3), pollOutput(t, p).Sequence)
}

func TestOutputQueueFullCountsXrun(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) {
		c.OutputQueueSize = 1
		c.InputQueueSize = 4
	})

	require.True(t, p.StartProcessing(t.Context()))
	for range 3 {
		require.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	}

	require.Eventually(t, func() bool {
		return p.GetPerformanceStats().ProcessedBuffers == 3
	}, waitFor, time.Millisecond)
	assert.GreaterOrEqual(t, p.GetPerformanceStats().Xruns, int64(2))
}

func TestGetOutputUnderrun(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, nil)

	assert.Nil(t, p.GetOutput())
	assert.Zero(t, p.GetPerformanceStats().BufferUnderruns)

	require.True(t, p.StartProcessing(t.Context()))
	assert.Nil(t, p.GetOutput())
	assert.Nil(t, p.GetOutput())
	assert.Equal(t, int64(2), p.GetPerformanceStats().BufferUnderruns)

	p.ResetPerformanceStats()
	stats := p.GetPerformanceStats()
	assert.Zero(t, stats.BufferUnderruns)
	assert.Empty(t, stats.ProcessTimeSamples)
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(c *Config) {
		c.HistorySize = 3
		c.InputQueueSize = 8
		c.OutputQueueSize = 8
	})

	require.True(t, p.StartProcessing(t.Context()))
	for range 6 {
		require.True(t, p.ProcessInput(block(48000, 2, 512, 0)))
	}
	require.Eventually(t, func() bool {
		return p.GetPerformanceStats().ProcessedBuffers == 6
	}, waitFor, time.Millisecond)

	stats := p.GetPerformanceStats()
	assert.Len(t, stats.ProcessTimeSamples, 3)
	assert.GreaterOrEqual(t, stats.CPUUsage, 0.0)
}

func TestMetersPerGroup(t *testing.T) {
	t.Parallel()

	gain, err := processors.NewGainProcessor("gain", 4.0)
	require.NoError(t, err)
	chain, err := processors.NewChain(gain)
	require.NoError(t, err)
	p := newProcessor(t, func(c *Config) { c.Chain = chain })

	require.True(t, p.StartProcessing(t.Context()))

	quiet := block(48000, 2, 512, 0.1)
	require.True(t, p.ProcessInput(quiet))
	pollOutput(t, p)

	loud := block(48000, 2, 512, 0.5)
	loud.Group = "drums"
	require.True(t, p.ProcessInput(loud))
	pollOutput(t, p)

	master, ok := p.GetMeter(audiocore.DefaultGroup)
	require.True(t, ok)
	assert.False(t, master.Clipping)
	assert.Zero(t, master.ClipCount)
	assert.InDelta(t, 0.4, master.Peak, 1e-6)
	assert.InDelta(t, 0.4, master.RMS, 1e-6)

	drums, ok := p.GetMeter("drums")
	require.True(t, ok)
	assert.True(t, drums.Clipping)
	assert.Equal(t, int64(1024), drums.ClipCount)
	assert.InDelta(t, 1.0, drums.Peak, 1e-9)

	assert.Len(t, p.Meters(), 2)

	p.ResetMeters()
	_, ok = p.GetMeter("drums")
	assert.False(t, ok)
}
