// Package conf loads rtaudio settings from config.yaml, RTAUDIO_* environment
// variables and command line flags.
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/rtaudio/internal/errors"
)

// AudioSettings holds the real-time stream format.
type AudioSettings struct {
	SampleRate int // samples per second, one of the standard rates
	BufferSize int // frames per processing block, power of two 64..4096
	Channels   int // channel count of every block
}

// BufferSettings configures buffer allocation and the buffer manager.
type BufferSettings struct {
	MaxMemoryMB     float64       // per buffer memory limit, 0 disables it
	ChunkSize       int           // streaming buffer chunk size in frames
	CacheSizeMB     float64       // streaming buffer chunk cache size
	PoolSize        int           // idle buffers kept per pool
	TotalMemoryMB   float64       // manager wide memory ceiling, 0 disables it
	MonitorInterval time.Duration // memory monitor period
	TempDir         string        // directory for streaming buffer files, empty for os default
}

// ProcessorSettings configures the real-time processing loop.
type ProcessorSettings struct {
	InputQueue    int           // input queue capacity in blocks
	OutputQueue   int           // output queue capacity in blocks
	WaitTimeout   time.Duration // how long the loop waits for input before idling
	InputLatency  int           // device input latency in samples
	OutputLatency int           // device output latency in samples
	HistorySize   int           // processing time samples kept for statistics
	CaptureSecs   float64       // seconds of processed audio kept for export
}

// ExportSettings holds defaults for rendering processed audio to disk.
type ExportSettings struct {
	Format     string        // wav, flac, mp3, aac or opus
	BitDepth   int           // 16, 24 or 32 for PCM formats
	Bitrate    string        // bitrate for lossy formats, e.g. 192k
	FfmpegPath string        // path to ffmpeg for non-wav formats
	Timeout    time.Duration // ffmpeg encode timeout
}

// DiagnosticsSettings configures the HTTP diagnostics endpoint.
type DiagnosticsSettings struct {
	Enabled bool   // true to serve /metrics and /api/v1
	Listen  string // listen address, e.g. localhost:8090
}

// TelemetrySettings configures optional error reporting.
type TelemetrySettings struct {
	Enabled bool   // true to report errors to Sentry
	DSN     string // Sentry DSN
}

// Settings is the root configuration.
type Settings struct {
	Debug bool // true to enable debug logging

	Audio       AudioSettings
	Buffers     BufferSettings
	Processor   ProcessorSettings
	Export      ExportSettings
	Diagnostics DiagnosticsSettings
	Telemetry   TelemetrySettings
}

// Load reads configuration into the global viper instance. configFile may be
// empty, in which case the default config paths are searched.
func Load(configFile string) (*Settings, error) {
	return LoadWith(viper.GetViper(), configFile)
}

// LoadWith reads configuration using v. A missing config file is not an
// error; defaults and environment variables still apply.
func LoadWith(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// initViper registers defaults and env bindings, then reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)
	configureEnvironmentVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}
	return nil
}
