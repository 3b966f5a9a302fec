package export

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
)

// FFmpegExporter encodes audio by piping float32 PCM into FFmpeg
type FFmpegExporter struct {
	ffmpegPath string
}

// NewFFmpegExporter creates a new FFmpeg-based exporter
func NewFFmpegExporter(ffmpegPath string) *FFmpegExporter {
	return &FFmpegExporter{ffmpegPath: ffmpegPath}
}

// Export encodes samples to path. FFmpeg writes a temporary file which is
// renamed into place on success.
func (f *FFmpegExporter) Export(ctx context.Context, path string, samples audiocore.Block, sampleRate int, settings Settings) error {
	_, err := f.exportStream(ctx, path, &blockSource{samples: samples}, samples.Channels(), sampleRate, settings)
	return err
}

// pipeResult is the outcome of feeding FFmpeg's stdin
type pipeResult struct {
	frames int
	err    error
}

// exportStream feeds src to FFmpeg one chunk at a time and returns the
// number of frames written.
func (f *FFmpegExporter) exportStream(ctx context.Context, path string, src Source, channels, sampleRate int, settings Settings) (int, error) {
	tempPath := path + ".tmp"
	args := f.buildArgs(sampleRate, channels, settings, tempPath)

	exportCtx, cancel := context.WithTimeout(ctx, settings.Timeout)
	defer cancel()

	cmd := exec.CommandContext(exportCtx, f.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategorySystem).
			Context("operation", "create_ffmpeg_stdin").
			Build()
	}

	// Capture stderr for error reporting
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategorySystem).
			Context("operation", "start_ffmpeg").
			Context("ffmpeg_path", f.ffmpegPath).
			Build()
	}

	started := time.Now()
	written := make(chan pipeResult, 1)
	go func() {
		defer func() {
			_ = stdin.Close()
		}()
		written <- feedPCM(stdin, src, channels)
	}()

	var fed pipeResult
	select {
	case fed = <-written:
		if fed.err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return 0, errors.New(fed.err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryExport).
				Context("operation", "write_pcm_to_ffmpeg").
				Context("stderr", stderr.String()).
				Build()
		}
	case <-exportCtx.Done():
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		<-written
		return 0, errors.New(exportCtx.Err()).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryTimeout).
			Timing("ffmpeg_export_timeout", time.Since(started)).
			Build()
	}

	if err := cmd.Wait(); err != nil {
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryExport).
			Timing("ffmpeg_export_failed", time.Since(started)).
			Context("stderr", stderr.String()).
			Build()
	}

	return fed.frames, commit(tempPath, path)
}

// feedPCM writes src to w as interleaved f32le until src runs dry
func feedPCM(w io.Writer, src Source, channels int) pipeResult {
	var (
		frames int
		pcm    []byte
	)
	for {
		chunk := src.Read(chunkFrames)
		n := chunk.Frames()
		if n == 0 {
			return pipeResult{frames: frames}
		}
		if chunk.Channels() != channels {
			return pipeResult{frames: frames, err: shapeError(chunk.Channels(), channels)}
		}
		pcm = chunk.AppendBytes(pcm[:0])
		if _, err := w.Write(pcm); err != nil {
			return pipeResult{frames: frames, err: err}
		}
		frames += n
	}
}

// buildArgs builds FFmpeg arguments reading interleaved f32le from stdin
func (f *FFmpegExporter) buildArgs(sampleRate, channels int, settings Settings, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "-",
	}

	if settings.SampleRate > 0 && settings.SampleRate != sampleRate {
		args = append(args, "-ar", strconv.Itoa(settings.SampleRate))
	}

	codec := GetFFmpegCodec(settings.Format)
	if settings.Format == FormatWAV {
		codec = "pcm_s" + strconv.Itoa(settings.BitDepth) + "le"
	}
	args = append(args, "-c:a", codec)

	if IsLossyFormat(settings.Format) && settings.Bitrate != "" {
		args = append(args, "-b:a", settings.Bitrate)
	}

	args = append(args, formatArgs(settings)...)

	return append(args,
		"-f", GetFFmpegFormat(settings.Format),
		"-y",
		outputPath,
	)
}

// formatArgs returns format-specific FFmpeg arguments
func formatArgs(settings Settings) []string {
	switch settings.Format {
	case FormatFLAC:
		switch settings.BitDepth {
		case 16:
			return []string{"-sample_fmt", "s16"}
		case 24:
			return []string{"-sample_fmt", "s32", "-bits_per_raw_sample", "24"}
		default:
			return nil
		}
	case FormatAAC:
		return []string{"-movflags", "+faststart"}
	default:
		return nil
	}
}

// GetFFmpegFormat returns the FFmpeg muxer name for a Format
func GetFFmpegFormat(format Format) string {
	switch format {
	case FormatAAC:
		return "mp4" // AAC typically uses MP4 container
	case FormatOpus:
		return "ogg"
	default:
		return string(format)
	}
}

// GetFFmpegCodec returns the FFmpeg codec name for a Format
func GetFFmpegCodec(format Format) string {
	switch format {
	case FormatMP3:
		return "libmp3lame"
	case FormatFLAC:
		return "flac"
	case FormatAAC:
		return "aac"
	case FormatOpus:
		return "libopus"
	default:
		return string(format)
	}
}
