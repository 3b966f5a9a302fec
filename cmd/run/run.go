package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/device"
	"github.com/tphakala/rtaudio/internal/audiocore/export"
	"github.com/tphakala/rtaudio/internal/audiocore/processors"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/audiocore/sources"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/diagnostics"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
	"github.com/tphakala/rtaudio/internal/observability"
)

// Options holds the run command flags
type Options struct {
	Duration       time.Duration
	Frequency      float64
	Amplitude      float64
	Gain           float64
	ExportPath     string
	UseDevice      bool
	ListDevices    bool
	CaptureDevice  string
	PlaybackDevice string
	ReportInterval time.Duration
}

// Command creates the run command
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the real-time processor",
		Long:  "Start the real-time processor, feed it a test tone or a sound card, and report statistics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.ListDevices {
				return printDevices(cmd.OutOrStdout(), device.ListDevices)
			}
			return Run(ctx, cmd.OutOrStdout(), settings, opts)
		},
	}

	// Set up flags specific to the 'run' command
	if err := setupFlags(cmd, settings, &opts); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the run command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *Options) error {
	cmd.Flags().DurationVar(&opts.Duration, "duration", 5*time.Second, "How long to run, 0 runs until interrupted")
	cmd.Flags().Float64Var(&opts.Frequency, "frequency", 440, "Test tone frequency in Hz")
	cmd.Flags().Float64Var(&opts.Amplitude, "amplitude", 0.5, "Test tone amplitude, 0..1")
	cmd.Flags().Float64Var(&opts.Gain, "gain", 1.0, "Gain applied by the processing chain")
	cmd.Flags().StringVar(&opts.ExportPath, "export", "", "Export the captured audio to this file when done")
	cmd.Flags().BoolVar(&opts.UseDevice, "device", false, "Process the sound card instead of a test tone")
	cmd.Flags().BoolVar(&opts.ListDevices, "list-devices", false, "List capture and playback devices and exit")
	cmd.Flags().StringVar(&opts.CaptureDevice, "capture", "", "Capture device name, empty for the default")
	cmd.Flags().StringVar(&opts.PlaybackDevice, "playback", "", "Playback device name, empty for the default")
	cmd.Flags().DurationVar(&opts.ReportInterval, "report", time.Second, "Statistics report interval")
	cmd.Flags().BoolVar(&settings.Diagnostics.Enabled, "diagnostics", viper.GetBool("diagnostics.enabled"), "Serve metrics and diagnostics over HTTP")
	cmd.Flags().StringVar(&settings.Diagnostics.Listen, "listen", viper.GetString("diagnostics.listen"), "Listen address of the diagnostics endpoint")
	cmd.Flags().StringVar(&settings.Export.Format, "format", viper.GetString("export.format"), "Export format (wav, flac, mp3, aac, opus)")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

// session is everything a run owns
type session struct {
	metrics   *observability.Metrics
	processor *realtime.Processor
	manager   *audiocore.AudioBufferManager
	server    *diagnostics.Server
}

func newSession(settings *conf.Settings, gain float64) (*session, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}
	collector := audiocore.NewMetricsCollector(m.AudioCore)

	gainProcessor, err := processors.NewGainProcessor("gain", gain)
	if err != nil {
		return nil, err
	}
	chain, err := processors.NewChain(gainProcessor)
	if err != nil {
		return nil, err
	}

	cfg := realtime.ConfigFromSettings(settings)
	cfg.Chain = chain
	cfg.Metrics = collector
	processor, err := realtime.NewProcessor(cfg)
	if err != nil {
		return nil, err
	}

	manager, err := audiocore.NewAudioBufferManager(audiocore.ManagerConfig{
		TotalMemoryMB:   settings.Buffers.TotalMemoryMB,
		MonitorInterval: settings.Buffers.MonitorInterval,
		PoolSize:        settings.Buffers.PoolSize,
		Metrics:         collector,
	})
	if err != nil {
		_ = processor.Close()
		return nil, err
	}

	s := &session{metrics: m, processor: processor, manager: manager}
	if settings.Diagnostics.Enabled {
		s.server = diagnostics.NewServer(diagnostics.Options{
			Listen:    settings.Diagnostics.Listen,
			Processor: processor,
			Manager:   manager,
			Metrics:   m,
		})
	}
	return s, nil
}

func (s *session) close() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), diagnostics.ShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	_ = s.processor.Close()
	_ = s.manager.Close()
}

// Run executes the run command until ctx is done or opts.Duration passes
func Run(ctx context.Context, w io.Writer, settings *conf.Settings, opts Options) error {
	logger := logging.Console("run")

	s, err := newSession(settings, opts.Gain)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.manager.Start(ctx); err != nil {
		return err
	}
	if s.server != nil {
		if err := s.server.Start(); err != nil {
			return err
		}
		fmt.Fprintf(w, "diagnostics on http://%s\n", s.server.Addr())
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	info := s.processor.GetLatencyInfo()
	fmt.Fprintf(w, "processing %d Hz, %d channels, %d frame blocks, %.2f ms round trip\n",
		info.SampleRate, s.processor.Channels(), info.BufferSize, info.TotalLatencyMS)

	s.processor.StartProcessing(ctx)
	logger.Info("processor started", "buffer_size", info.BufferSize, "sample_rate", info.SampleRate)

	if opts.UseDevice {
		err = runDevice(ctx, w, s.processor, opts)
	} else {
		err = runTone(ctx, w, s.processor, opts)
	}
	s.processor.StopProcessing()
	if err != nil {
		return err
	}

	printSummary(w, s.processor)

	if opts.ExportPath != "" {
		result, err := exportCapture(s.processor, settings, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "exported %s (%s, %d bytes)\n", result.Path, result.Duration, result.Bytes)
	}
	return nil
}

// runTone feeds a sine wave at the block rate and consumes the output the
// way a playback device would
func runTone(ctx context.Context, w io.Writer, p *realtime.Processor, opts Options) error {
	bufferSize := p.BufferSize()
	sampleRate := p.SampleRate()
	gen := sources.NewSineGenerator(opts.Frequency, opts.Amplitude, sampleRate, p.Channels())
	period := time.Duration(bufferSize) * time.Second / time.Duration(sampleRate)

	var sequence uint64
	feed := func() {
		sequence++
		p.ProcessInput(&audiocore.AudioData{
			Samples: gen.Next(bufferSize),
			Format: audiocore.AudioFormat{
				SampleRate: sampleRate,
				Channels:   p.Channels(),
				BitDepth:   32,
				Encoding:   audiocore.EncodingF32,
			},
			Timestamp: time.Now(),
			Sequence:  sequence,
		})
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	report := newReporter(w, p, opts.ReportInterval)

	feed()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.GetOutput()
			feed()
			report.maybe(now)
		}
	}
}

// runDevice drives the processor from the sound card
func runDevice(ctx context.Context, w io.Writer, p *realtime.Processor, opts Options) error {
	duplex := device.NewDuplex(p, device.Config{
		CaptureDevice:  opts.CaptureDevice,
		PlaybackDevice: opts.PlaybackDevice,
	})
	if err := duplex.Start(); err != nil {
		return deviceStartFailed(w, err)
	}
	defer func() { _ = duplex.Stop() }()

	ticker := time.NewTicker(opts.ReportInterval)
	defer ticker.Stop()
	report := newReporter(w, p, opts.ReportInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			report.maybe(now)
		}
	}
}

// deviceStartFailed points the user at --list-devices when a named device
// does not exist
func deviceStartFailed(w io.Writer, err error) error {
	if errors.IsNotFound(err) {
		fmt.Fprintln(w, "device not found, use --list-devices to see the available devices")
	}
	return err
}

// printDevices writes the capture and playback devices reported by list
func printDevices(w io.Writer, list func(malgo.DeviceType) ([]device.Info, error)) error {
	for _, kind := range []struct {
		name       string
		deviceType malgo.DeviceType
	}{
		{"capture", malgo.Capture},
		{"playback", malgo.Playback},
	} {
		devices, err := list(kind.deviceType)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s devices:\n", kind.name)
		if len(devices) == 0 {
			fmt.Fprintln(w, "  none")
		}
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Fprintf(w, " %s%d: %s (%s)\n", marker, d.Index, d.Name, d.ID)
		}
	}
	return nil
}

func exportCapture(p *realtime.Processor, settings *conf.Settings, opts Options) (export.Result, error) {
	duration := time.Duration(settings.Processor.CaptureSecs * float64(time.Second))
	if opts.Duration > 0 && opts.Duration < duration {
		duration = opts.Duration
	}

	ctx, cancel := context.WithTimeout(context.Background(), settings.Export.Timeout+time.Second)
	defer cancel()
	return p.ExportAudio(ctx, opts.ExportPath, duration, export.SettingsFromConfig(settings.Export))
}
