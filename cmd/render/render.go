package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/export"
	"github.com/tphakala/rtaudio/internal/audiocore/processors"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/audiocore/sources"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// drainTimeout bounds the wait for the last processed blocks
const drainTimeout = 5 * time.Second

// Options holds the render command flags
type Options struct {
	Gain        float64
	DelayFrames int
	Format      string
	BitDepth    int
}

// Command creates the render command
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "render INPUT OUTPUT",
		Short: "Process an audio file through the chain and export it",
		Long:  "Import a WAV or FLAC file into a streaming buffer, run it through the real-time processor block by block, and export the result.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Render(ctx, cmd.OutOrStdout(), settings, args[0], args[1], opts)
		},
	}

	cmd.Flags().Float64Var(&opts.Gain, "gain", 1.0, "Gain applied by the processing chain")
	cmd.Flags().IntVar(&opts.DelayFrames, "delay", 0, "Delay in frames applied after the gain")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Export format, defaults to the configured format")
	cmd.Flags().IntVar(&opts.BitDepth, "bitdepth", 0, "Export bit depth, defaults to the configured depth")

	return cmd
}

// inFlightLimit is the number of blocks allowed in flight
func inFlightLimit(settings *conf.Settings) int {
	if settings.Processor.OutputQueue > 0 {
		return settings.Processor.OutputQueue
	}
	return realtime.DefaultQueueSize
}

func buildChain(opts Options) (*processors.Chain, error) {
	gain, err := processors.NewGainProcessor("gain", opts.Gain)
	if err != nil {
		return nil, err
	}
	chain, err := processors.NewChain(gain)
	if err != nil {
		return nil, err
	}
	if opts.DelayFrames > 0 {
		delay, err := processors.NewDelayProcessor("delay", opts.DelayFrames)
		if err != nil {
			return nil, err
		}
		if err := chain.AddProcessor(delay); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

// Render imports input, processes it and writes output
func Render(ctx context.Context, w io.Writer, settings *conf.Settings, input, output string, opts Options) error {
	logger := logging.Console("render")
	start := time.Now()

	exportSettings := export.SettingsFromConfig(settings.Export)
	if opts.Format != "" {
		exportSettings.Format = export.Format(opts.Format)
	}
	if opts.BitDepth != 0 {
		exportSettings.BitDepth = opts.BitDepth
	}
	if err := export.ValidateSettings(&exportSettings); err != nil {
		return err
	}

	chain, err := buildChain(opts)
	if err != nil {
		return err
	}

	manager, err := audiocore.NewAudioBufferManager(audiocore.ManagerConfig{
		TotalMemoryMB: settings.Buffers.TotalMemoryMB,
	})
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	bufferConfig, err := audiocore.NewBufferConfig(audiocore.TypeStreaming,
		settings.Audio.SampleRate, settings.Audio.Channels, settings.Audio.BufferSize, settings.Buffers.MaxMemoryMB)
	if err != nil {
		return err
	}
	bufferConfig.ChunkSize = settings.Buffers.ChunkSize
	bufferConfig.CacheSizeMB = settings.Buffers.CacheSizeMB
	bufferConfig.TempDir = settings.Buffers.TempDir

	buf, err := manager.CreateBuffer("render-input", audiocore.TypeStreaming, bufferConfig)
	if err != nil {
		return err
	}
	processed, err := manager.CreateBuffer("render-output", audiocore.TypeStreaming, bufferConfig)
	if err != nil {
		return err
	}

	frames, info, err := sources.LoadInto(input, buf)
	if err != nil {
		return err
	}
	if info.Channels != settings.Audio.Channels {
		return errors.New(audiocore.ErrShapeMismatch).
			Component("render").
			Category(errors.CategoryValidation).
			Context("file_channels", info.Channels).
			Context("channels", settings.Audio.Channels).
			Build()
	}
	fmt.Fprintf(w, "imported %s: %d frames, %d Hz, %d channels, %d bit\n",
		input, frames, info.SampleRate, info.Channels, info.BitDepth)

	cfg := realtime.ConfigFromSettings(settings)
	cfg.Chain = chain
	cfg.CaptureSeconds = 0
	p, err := realtime.NewProcessor(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	// Keep the tail the chain delays past the end of the input
	total := frames + chain.LatencySamples()
	out := &sink{buf: processed, channels: p.Channels(), total: total}
	if err := process(ctx, p, buf, out, inFlightLimit(settings)); err != nil {
		return err
	}

	if !processed.Seek(0) {
		return audiocore.ErrBufferClosed
	}
	result, err := export.ExportStream(ctx, output, processed, p.Channels(), settings.Audio.SampleRate, exportSettings)
	if err != nil {
		return err
	}

	stats := p.GetPerformanceStats()
	logger.Info("render complete",
		"input", input,
		"output", result.Path,
		"frames", frames,
		"blocks", stats.ProcessedBuffers,
		"elapsed", time.Since(start))
	fmt.Fprintf(w, "rendered %s: %s, %d blocks, %d failures, avg %.3f ms per block\n",
		result.Path, result.Duration, stats.ProcessedBuffers, stats.ProcessingFailures, stats.AvgProcessTimeMS)
	return nil
}

// sink writes processed blocks to a buffer in sequence order. Gaps left by
// failed blocks become silence and output stops at total frames.
type sink struct {
	buf      audiocore.Buffer
	channels int
	total    int
	next     int // sequence of the next block to write
	written  int
}

// put writes the block with sequence index, filling any skipped blocks
func (s *sink) put(index int, block audiocore.Block) error {
	if index < s.next {
		return nil
	}
	for s.next < index {
		if err := s.write(audiocore.NewBlock(s.channels, block.Frames())); err != nil {
			return err
		}
	}
	return s.write(block)
}

func (s *sink) write(block audiocore.Block) error {
	s.next++
	n := min(block.Frames(), s.total-s.written)
	if n <= 0 {
		return nil
	}
	written, err := s.buf.Write(block.Slice(0, n))
	s.written += written
	if err != nil {
		return err
	}
	if written < n {
		return errors.New(audiocore.ErrCapacity).
			Component("render").
			Category(errors.CategoryLimit).
			Context("written_frames", s.written).
			Context("total_frames", s.total).
			Build()
	}
	return nil
}

// finish pads the output with silence up to total frames
func (s *sink) finish(bufferSize int) error {
	for s.written < s.total {
		if err := s.write(audiocore.NewBlock(s.channels, bufferSize)); err != nil {
			return err
		}
	}
	return nil
}

// process streams buf through p one block at a time, keeping at most
// window blocks in flight so the output queue never overflows. Only the
// blocks in flight are held in memory.
func process(ctx context.Context, p *realtime.Processor, buf audiocore.Buffer, out *sink, window int) error {
	bufferSize := p.BufferSize()
	channels := p.Channels()
	sampleRate := p.SampleRate()
	blocks := (out.total + bufferSize - 1) / bufferSize

	collected := 0
	var sinkErr error

	collect := func() {
		for sinkErr == nil {
			if _, depth := p.QueueDepths(); depth == 0 {
				return
			}
			data := p.GetOutput()
			if data == nil {
				return
			}
			index := int(data.Sequence)
			if index < 0 || index >= blocks || index < out.next {
				continue
			}
			sinkErr = out.put(index, data.Samples)
			collected++
		}
	}
	failures := func() int {
		return int(p.GetPerformanceStats().ProcessingFailures)
	}
	// wait collects until done reports true
	wait := func(done func() bool) error {
		deadline := time.Now().Add(drainTimeout)
		for {
			collect()
			if sinkErr != nil {
				return sinkErr
			}
			if done() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if time.Now().After(deadline) {
				return errors.Newf("timed out waiting for processed blocks").
					Component("render").
					Category(errors.CategoryTimeout).
					Context("collected", collected).
					Context("blocks", blocks).
					Build()
			}
			time.Sleep(time.Millisecond)
		}
	}

	p.StartProcessing(ctx)
	defer p.StopProcessing()

	if !buf.Seek(0) {
		return audiocore.ErrBufferClosed
	}
	for index := range blocks {
		if err := wait(func() bool { return index-collected-failures() < window }); err != nil {
			return err
		}

		block := buf.Read(bufferSize)
		if block.Frames() < bufferSize {
			padded := audiocore.NewBlock(channels, bufferSize)
			for ch := range min(channels, block.Channels()) {
				copy(padded[ch], block[ch])
			}
			block = padded
		}

		data := &audiocore.AudioData{
			Samples:  block,
			Format:   audiocore.AudioFormat{SampleRate: sampleRate, Channels: channels, BitDepth: 32, Encoding: audiocore.EncodingF32},
			Sequence: uint64(index),
		}
		if err := wait(func() bool { return p.ProcessInput(data) }); err != nil {
			return err
		}
	}

	if err := wait(func() bool { return collected+failures() >= blocks }); err != nil {
		return err
	}
	return out.finish(bufferSize)
}
