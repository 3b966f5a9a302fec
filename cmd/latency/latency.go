package latency

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/conf"
)

// Command creates the latency table command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "latency",
		Short: "Print the latency of every supported buffer size and sample rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTable(os.Stdout, settings)
		},
	}
}

// bufferSizes returns every accepted block size in ascending order
func bufferSizes() []int {
	var sizes []int
	for size := conf.MinBufferSize; size <= conf.MaxBufferSize; size *= 2 {
		sizes = append(sizes, size)
	}
	return sizes
}

func printTable(w io.Writer, settings *conf.Settings) error {
	cfg := realtime.ConfigFromSettings(settings)
	cfg.CaptureSeconds = 0

	fmt.Fprintf(w, "Buffer  Rate     Samples  Latency    Block\n")
	fmt.Fprintf(w, "──────  ───────  ───────  ─────────  ─────────\n")
	for _, size := range bufferSizes() {
		for _, rate := range conf.SupportedSampleRates {
			cfg.BufferSize = size
			cfg.SampleRate = rate
			p, err := realtime.NewProcessor(cfg)
			if err != nil {
				return err
			}
			info := p.CalculateSystemLatency()
			_ = p.Close()

			fmt.Fprintf(w, "%6d  %7d  %7d  %6.2f ms  %6.2f ms\n",
				size, rate, info.TotalLatencySamples, info.TotalLatencyMS, info.BufferLatencyMS)
		}
	}
	return nil
}
