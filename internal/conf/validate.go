// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"

	"github.com/tphakala/rtaudio/internal/errors"
)

// SupportedSampleRates lists the stream rates the processor accepts.
var SupportedSampleRates = []int{22050, 44100, 48000, 88200, 96000, 176400, 192000}

// Buffer size bounds, inclusive. Sizes must also be a power of two.
const (
	MinBufferSize = 64
	MaxBufferSize = 4096
	MaxChannels   = 32
)

// SupportedExportFormats lists the formats export understands.
var SupportedExportFormats = []string{"wav", "flac", "mp3", "aac", "opus"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ValidBufferSize reports whether n is an accepted processing block size.
func ValidBufferSize(n int) bool {
	return IsPowerOfTwo(n) && n >= MinBufferSize && n <= MaxBufferSize
}

// ValidSampleRate reports whether rate is one of SupportedSampleRates.
func ValidSampleRate(rate int) bool {
	return slices.Contains(SupportedSampleRates, rate)
}

// ValidateSettings validates the entire Settings struct. The returned error
// carries CategoryConfiguration and wraps a ValidationError.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAudioSettings(&settings.Audio)...)
	ve.Errors = append(ve.Errors, validateBufferSettings(&settings.Buffers)...)
	ve.Errors = append(ve.Errors, validateProcessorSettings(&settings.Processor)...)
	ve.Errors = append(ve.Errors, validateExportSettings(&settings.Export)...)
	ve.Errors = append(ve.Errors, validateDiagnosticsSettings(&settings.Diagnostics)...)

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.dsn is required when telemetry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateAudioSettings(settings *AudioSettings) []string {
	var errs []string
	if !ValidSampleRate(settings.SampleRate) {
		errs = append(errs, fmt.Sprintf("audio.samplerate %d is not one of %v", settings.SampleRate, SupportedSampleRates))
	}
	if !ValidBufferSize(settings.BufferSize) {
		errs = append(errs, fmt.Sprintf("audio.buffersize %d must be a power of two between %d and %d",
			settings.BufferSize, MinBufferSize, MaxBufferSize))
	}
	if settings.Channels < 1 || settings.Channels > MaxChannels {
		errs = append(errs, fmt.Sprintf("audio.channels %d must be between 1 and %d", settings.Channels, MaxChannels))
	}
	return errs
}

func validateBufferSettings(settings *BufferSettings) []string {
	var errs []string
	if settings.MaxMemoryMB < 0 {
		errs = append(errs, "buffers.maxmemorymb must not be negative")
	}
	if settings.ChunkSize < 0 {
		errs = append(errs, "buffers.chunksize must not be negative")
	}
	if settings.CacheSizeMB < 0 {
		errs = append(errs, "buffers.cachesizemb must not be negative")
	}
	if settings.PoolSize < 1 {
		errs = append(errs, "buffers.poolsize must be at least 1")
	}
	if settings.TotalMemoryMB < 0 {
		errs = append(errs, "buffers.totalmemorymb must not be negative")
	}
	if settings.MonitorInterval <= 0 {
		errs = append(errs, "buffers.monitorinterval must be positive")
	}
	return errs
}

func validateProcessorSettings(settings *ProcessorSettings) []string {
	var errs []string
	if settings.InputQueue < 1 {
		errs = append(errs, "processor.inputqueue must be at least 1")
	}
	if settings.OutputQueue < 1 {
		errs = append(errs, "processor.outputqueue must be at least 1")
	}
	if settings.WaitTimeout <= 0 {
		errs = append(errs, "processor.waittimeout must be positive")
	}
	if settings.InputLatency < 0 || settings.OutputLatency < 0 {
		errs = append(errs, "processor latencies must not be negative")
	}
	if settings.HistorySize < 1 {
		errs = append(errs, "processor.historysize must be at least 1")
	}
	if settings.CaptureSecs < 0 {
		errs = append(errs, "processor.capturesecs must not be negative")
	}
	return errs
}

func validateExportSettings(settings *ExportSettings) []string {
	var errs []string
	if !slices.Contains(SupportedExportFormats, settings.Format) {
		errs = append(errs, fmt.Sprintf("export.format %q is not one of %v", settings.Format, SupportedExportFormats))
	}
	switch settings.BitDepth {
	case 16, 24, 32:
	default:
		errs = append(errs, fmt.Sprintf("export.bitdepth %d must be 16, 24 or 32", settings.BitDepth))
	}
	if settings.Timeout <= 0 {
		errs = append(errs, "export.timeout must be positive")
	}
	return errs
}

func validateDiagnosticsSettings(settings *DiagnosticsSettings) []string {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return []string{fmt.Sprintf("diagnostics.listen %q is not a valid host:port: %v", settings.Listen, err)}
	}
	return nil
}
