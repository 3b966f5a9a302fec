// Package export renders processed audio to files. WAV is written natively
// with go-audio/wav; compressed formats are encoded by piping float32 PCM
// through FFmpeg.
package export

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
)

// Format represents the audio export format
type Format string

const (
	// FormatWAV represents WAV audio format (native Go implementation)
	FormatWAV Format = "wav"
	// FormatMP3 represents MP3 audio format (requires FFmpeg)
	FormatMP3 Format = "mp3"
	// FormatFLAC represents FLAC audio format (requires FFmpeg)
	FormatFLAC Format = "flac"
	// FormatAAC represents AAC audio format (requires FFmpeg)
	FormatAAC Format = "aac"
	// FormatOpus represents Opus audio format (requires FFmpeg)
	FormatOpus Format = "opus"
)

// Settings controls one export
type Settings struct {
	Format     Format
	BitDepth   int           // 16, 24 or 32, used by wav and flac
	SampleRate int           // output rate, 0 keeps the source rate
	Bitrate    string        // lossy formats only, e.g. "192k"
	FFmpegPath string        // required for every format but wav
	Timeout    time.Duration // upper bound for FFmpeg runs
}

// Result describes a finished export
type Result struct {
	Path     string        `json:"path"`
	Format   Format        `json:"format"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
	Bytes    int64         `json:"bytes"`
	Elapsed  time.Duration `json:"elapsed"`
}

// DefaultSettings returns 24 bit WAV settings
func DefaultSettings() Settings {
	return Settings{
		Format:     FormatWAV,
		BitDepth:   24,
		Bitrate:    "192k",
		FFmpegPath: "ffmpeg",
		Timeout:    30 * time.Second,
	}
}

// SettingsFromConfig maps the export section of the configuration
func SettingsFromConfig(c conf.ExportSettings) Settings {
	return Settings{
		Format:     Format(strings.ToLower(c.Format)),
		BitDepth:   c.BitDepth,
		Bitrate:    c.Bitrate,
		FFmpegPath: c.FfmpegPath,
		Timeout:    c.Timeout,
	}
}

func validationError(msg string, key string, value any) error {
	return errors.Newf("%s", msg).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

// ValidateSettings validates export settings
func ValidateSettings(s *Settings) error {
	if s == nil {
		return errors.Newf("export settings are nil").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	if !IsValidFormat(s.Format) {
		return validationError("invalid export format: "+string(s.Format), "format", string(s.Format))
	}

	if !IsLossyFormat(s.Format) {
		switch s.BitDepth {
		case 16, 24, 32:
		default:
			return validationError("unsupported bit depth: "+strconv.Itoa(s.BitDepth), "bit_depth", s.BitDepth)
		}
	}
	// FFmpeg's FLAC encoder stops at 24 bits
	if s.Format == FormatFLAC && s.BitDepth > 24 {
		return validationError("flac supports 16 or 24 bit: "+strconv.Itoa(s.BitDepth), "bit_depth", s.BitDepth)
	}

	if s.SampleRate < 0 {
		return validationError("sample rate must not be negative", "sample_rate", s.SampleRate)
	}

	if IsLossyFormat(s.Format) && s.Bitrate != "" && !IsValidBitrate(s.Bitrate) {
		return validationError("invalid bitrate: "+s.Bitrate, "bitrate", s.Bitrate)
	}

	if s.Format != FormatWAV {
		if s.FFmpegPath == "" {
			return errors.Newf("FFmpeg path required for format: %s", s.Format).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryConfiguration).
				Context("format", string(s.Format)).
				Build()
		}
		if s.Timeout <= 0 {
			return validationError("invalid export timeout: "+s.Timeout.String(), "timeout", s.Timeout.String())
		}
	}

	return nil
}

// IsValidFormat checks if a format is valid
func IsValidFormat(format Format) bool {
	switch format {
	case FormatWAV, FormatMP3, FormatFLAC, FormatAAC, FormatOpus:
		return true
	default:
		return false
	}
}

// IsLossyFormat checks if a format is lossy
func IsLossyFormat(format Format) bool {
	switch format {
	case FormatMP3, FormatAAC, FormatOpus:
		return true
	default:
		return false
	}
}

// IsValidBitrate checks a bitrate such as "128k" against 32k..320k
func IsValidBitrate(bitrate string) bool {
	numStr, ok := strings.CutSuffix(bitrate, "k")
	if !ok || numStr == "" {
		return false
	}
	rate, err := strconv.Atoi(numStr)
	if err != nil {
		return false
	}
	return rate >= 32 && rate <= 320
}

// chunkFrames is the number of frames encoded per write
const chunkFrames = 4096

// Source yields audio in order. An empty block marks the end. Every
// audiocore.Buffer is a Source.
type Source interface {
	Read(frames int) audiocore.Block
}

// blockSource reads a block front to back
type blockSource struct {
	samples audiocore.Block
	pos     int
}

func (s *blockSource) Read(frames int) audiocore.Block {
	n := min(frames, s.samples.Frames()-s.pos)
	out := s.samples.Slice(s.pos, s.pos+n)
	s.pos += n
	return out
}

// Export writes samples to path in the format named by settings
func Export(ctx context.Context, path string, samples audiocore.Block, sampleRate int, settings Settings) (Result, error) {
	if samples.Channels() == 0 || !samples.Valid() {
		return Result{}, validationError("export needs a non-empty block", "channels", samples.Channels())
	}
	return ExportStream(ctx, path, &blockSource{samples: samples}, samples.Channels(), sampleRate, settings)
}

// ExportStream encodes src to path chunk by chunk until src runs dry, so
// only one chunk is held in memory at a time.
func ExportStream(ctx context.Context, path string, src Source, channels, sampleRate int, settings Settings) (Result, error) {
	start := time.Now()
	if err := ValidateSettings(&settings); err != nil {
		return Result{}, err
	}
	if sampleRate <= 0 || channels <= 0 {
		return Result{}, validationError("export needs channels and a positive sample rate", "sample_rate", sampleRate)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("operation", "create_export_directory").
			Context("path", filepath.Dir(path)).
			Build()
	}

	var (
		frames int
		err    error
	)
	if settings.Format == FormatWAV && (settings.SampleRate == 0 || settings.SampleRate == sampleRate) {
		frames, err = writeWAV(path, src, channels, sampleRate, settings.BitDepth)
	} else {
		frames, err = NewFFmpegExporter(settings.FFmpegPath).exportStream(ctx, path, src, channels, sampleRate, settings)
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Path:     path,
		Format:   settings.Format,
		Frames:   frames,
		Duration: time.Duration(frames) * time.Second / time.Duration(sampleRate),
		Elapsed:  time.Since(start),
	}
	if info, statErr := os.Stat(path); statErr == nil {
		result.Bytes = info.Size()
	}
	return result, nil
}

// shapeError reports a source chunk whose channel count changed mid-stream
func shapeError(got, want int) error {
	return errors.New(audiocore.ErrShapeMismatch).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("channels", got).
		Context("expected_channels", want).
		Build()
}

// commit renames the temporary export file into place
func commit(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("operation", "rename_export_file").
			Context("from", tempPath).
			Context("to", path).
			Build()
	}
	return nil
}
