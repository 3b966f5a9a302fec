package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/rtaudio/cmd/config"
	"github.com/tphakala/rtaudio/cmd/latency"
	"github.com/tphakala/rtaudio/cmd/render"
	"github.com/tphakala/rtaudio/cmd/run"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/logging"
	"github.com/tphakala/rtaudio/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rtaudio",
		Short:         "Real-time audio buffer engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var trace bool

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings, &trace); err != nil {
		logging.Structured().Error("error setting up flags", "error", err)
	}

	rootCmd.AddCommand(
		run.Command(settings),
		latency.Command(settings),
		render.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, trace)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Flush(2 * time.Second)
	}

	return rootCmd
}

// initialize runs before any subcommand, after flags are parsed
func initialize(settings *conf.Settings, trace bool) error {
	switch {
	case trace:
		logging.SetLevel(logging.LevelTrace)
	case settings.Debug:
		logging.SetLevel(slog.LevelDebug)
	}
	return telemetry.InitSentry(settings)
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, trace *bool) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(trace, "trace", false, "Log every processed block, implies --debug")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", viper.GetInt("audio.samplerate"), "Sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.BufferSize, "buffersize", viper.GetInt("audio.buffersize"), "Frames per processing block, power of two 64..4096")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.Channels, "channels", viper.GetInt("audio.channels"), "Channel count")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
