package realtime

import (
	"fmt"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
)

// Processor defaults
const (
	DefaultQueueSize      = 8
	DefaultWaitTimeout    = 10 * time.Millisecond
	DefaultHistorySize    = 1000
	DefaultCaptureSeconds = 30.0
)

// Config configures a Processor
type Config struct {
	BufferSize           int           // frames per block, power of two in [64, 4096]
	SampleRate           int           // one of conf.SupportedSampleRates
	Channels             int           // 1..conf.MaxChannels
	InputQueueSize       int           // blocks waiting for the loop
	OutputQueueSize      int           // processed blocks waiting for the consumer
	WaitTimeout          time.Duration // how long the loop blocks before idling
	InputLatencySamples  int           // device input latency on top of one block
	OutputLatencySamples int           // device output latency on top of one block
	HistorySize          int           // processing time samples kept
	CaptureSeconds       float64       // processed audio kept for export, 0 disables capture
	Chain                audiocore.ProcessorChain
	Metrics              *audiocore.MetricsCollector
}

// DefaultConfig returns a stereo 48 kHz config with 512 frame blocks
func DefaultConfig() Config {
	return Config{
		BufferSize:      512,
		SampleRate:      48000,
		Channels:        2,
		InputQueueSize:  DefaultQueueSize,
		OutputQueueSize: DefaultQueueSize,
		WaitTimeout:     DefaultWaitTimeout,
		HistorySize:     DefaultHistorySize,
		CaptureSeconds:  DefaultCaptureSeconds,
	}
}

// ConfigFromSettings maps loaded settings onto a processor config. Chain
// and Metrics are left for the caller.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		BufferSize:           settings.Audio.BufferSize,
		SampleRate:           settings.Audio.SampleRate,
		Channels:             settings.Audio.Channels,
		InputQueueSize:       settings.Processor.InputQueue,
		OutputQueueSize:      settings.Processor.OutputQueue,
		WaitTimeout:          settings.Processor.WaitTimeout,
		InputLatencySamples:  settings.Processor.InputLatency,
		OutputLatencySamples: settings.Processor.OutputLatency,
		HistorySize:          settings.Processor.HistorySize,
		CaptureSeconds:       settings.Processor.CaptureSecs,
	}
}

// withDefaults fills zero queue, timeout and history values
func (c Config) withDefaults() Config {
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = DefaultQueueSize
	}
	if c.OutputQueueSize <= 0 {
		c.OutputQueueSize = DefaultQueueSize
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

func (c Config) validate() error {
	if err := validateBufferSize(c.BufferSize); err != nil {
		return err
	}
	if err := validateSampleRate(c.SampleRate); err != nil {
		return err
	}
	if err := validateChannels(c.Channels); err != nil {
		return err
	}
	if c.InputLatencySamples < 0 || c.OutputLatencySamples < 0 {
		return configError("latency", fmt.Sprintf("%d/%d", c.InputLatencySamples, c.OutputLatencySamples),
			"device latencies must not be negative")
	}
	if c.CaptureSeconds < 0 {
		return configError("capture_seconds", c.CaptureSeconds, "capture length must not be negative")
	}
	return nil
}

func validateBufferSize(size int) error {
	if !conf.ValidBufferSize(size) {
		return configError("buffer_size", size,
			fmt.Sprintf("buffer size must be a power of two between %d and %d", conf.MinBufferSize, conf.MaxBufferSize))
	}
	return nil
}

func validateSampleRate(rate int) error {
	if !conf.ValidSampleRate(rate) {
		return configError("sample_rate", rate,
			fmt.Sprintf("unsupported sample rate, expected one of %v", conf.SupportedSampleRates))
	}
	return nil
}

func validateChannels(channels int) error {
	if channels < 1 || channels > conf.MaxChannels {
		return configError("channels", channels,
			fmt.Sprintf("channel count must be between 1 and %d", conf.MaxChannels))
	}
	return nil
}

// configError wraps ErrConfiguration with the rejected field
func configError(field string, value any, msg string) error {
	return errors.New(fmt.Errorf("%w: %s", audiocore.ErrConfiguration, msg)).
		Component(componentRealtime).
		Category(errors.CategoryConfiguration).
		Context("field", field).
		Context("value", value).
		Build()
}
