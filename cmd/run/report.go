package run

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
)

// reporter prints periodic statistics and flags growing underruns
type reporter struct {
	w         io.Writer
	p         *realtime.Processor
	interval  time.Duration
	last      time.Time
	underruns int64
	xruns     int64
}

func newReporter(w io.Writer, p *realtime.Processor, interval time.Duration) *reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &reporter{w: w, p: p, interval: interval, last: time.Now()}
}

// maybe prints a report when the interval has passed
func (r *reporter) maybe(now time.Time) {
	if now.Sub(r.last) < r.interval {
		return
	}
	r.last = now

	stats := r.p.GetPerformanceStats()
	fmt.Fprintf(r.w, "processed=%d underruns=%d xruns=%d dropped=%d cpu=%.1f%% avg=%.3fms max=%.3fms\n",
		stats.ProcessedBuffers, stats.BufferUnderruns, stats.Xruns, stats.DroppedInputs,
		stats.CPUUsage, stats.AvgProcessTimeMS, stats.MaxProcessTimeMS)

	if stats.BufferUnderruns > r.underruns || stats.Xruns > r.xruns {
		fmt.Fprintf(r.w, "warning: degraded performance, %d new underruns and %d new xruns\n",
			stats.BufferUnderruns-r.underruns, stats.Xruns-r.xruns)
	}
	r.underruns = stats.BufferUnderruns
	r.xruns = stats.Xruns
}

func printSummary(w io.Writer, p *realtime.Processor) {
	stats := p.GetPerformanceStats()
	info := p.GetLatencyInfo()

	fmt.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "  processed blocks:    %d\n", stats.ProcessedBuffers)
	fmt.Fprintf(w, "  underruns:           %d\n", stats.BufferUnderruns)
	fmt.Fprintf(w, "  xruns:               %d\n", stats.Xruns)
	fmt.Fprintf(w, "  processing failures: %d\n", stats.ProcessingFailures)
	fmt.Fprintf(w, "  dropped inputs:      %d\n", stats.DroppedInputs)
	fmt.Fprintf(w, "  avg process time:    %.3f ms (%.1f%% of a block)\n", stats.AvgProcessTimeMS, stats.CPUUsage)
	fmt.Fprintf(w, "  max process time:    %.3f ms\n", stats.MaxProcessTimeMS)
	fmt.Fprintf(w, "  round trip latency:  %d samples, %.2f ms\n", info.TotalLatencySamples, info.TotalLatencyMS)

	meters := p.Meters()
	for _, group := range slices.Sorted(maps.Keys(meters)) {
		m := meters[group]
		fmt.Fprintf(w, "  meter %-13s peak=%.3f rms=%.3f clipped=%d\n", group+":", m.Peak, m.RMS, m.ClipCount)
	}
}
