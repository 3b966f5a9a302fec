// Package realtime runs the block processing loop between an audio device
// and the plugin chain.
//
// A Processor owns one goroutine. Producers hand blocks to ProcessInput and
// consumers poll GetOutput; neither call blocks. The loop is the only place
// that waits, on the input queue with a short timeout.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/processors"
	"github.com/tphakala/rtaudio/internal/logging"
)

const componentRealtime = "realtime"

// Processor is the real-time scheduling core
type Processor struct {
	mu             sync.RWMutex // guards the stream format
	bufferSize     int
	sampleRate     int
	channels       int
	inputLatency   int
	outputLatency  int
	captureSeconds float64

	chain       audiocore.ProcessorChain
	metrics     *audiocore.MetricsCollector
	waitTimeout time.Duration

	input  chan *audiocore.AudioData
	output chan *audiocore.AudioData

	lifecycleMu sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	stats   *perfStats
	meters  *meterBank
	capture *captureTap

	dropWarn     *rate.Limiter
	underrunWarn *rate.Limiter
	xrunWarn     *rate.Limiter
	logger       *slog.Logger
}

// NewProcessor validates config and returns a stopped processor
func NewProcessor(config Config) (*Processor, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	chain := config.Chain
	if chain == nil {
		empty, err := processors.NewChain()
		if err != nil {
			return nil, err
		}
		chain = empty
	}

	capture, err := newCaptureTap(config.CaptureSeconds, config.SampleRate, config.Channels)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		bufferSize:     config.BufferSize,
		sampleRate:     config.SampleRate,
		channels:       config.Channels,
		inputLatency:   config.InputLatencySamples,
		outputLatency:  config.OutputLatencySamples,
		captureSeconds: config.CaptureSeconds,
		chain:          chain,
		metrics:        config.Metrics,
		waitTimeout:    config.WaitTimeout,
		input:          make(chan *audiocore.AudioData, config.InputQueueSize),
		output:         make(chan *audiocore.AudioData, config.OutputQueueSize),
		stats:          newPerfStats(config.HistorySize),
		meters:         newMeterBank(),
		capture:        capture,
		dropWarn:       rate.NewLimiter(rate.Every(time.Second), 1),
		underrunWarn:   rate.NewLimiter(rate.Every(time.Second), 1),
		xrunWarn:       rate.NewLimiter(rate.Every(time.Second), 1),
		logger:         logging.Component("audiocore", "realtime"),
	}

	p.logger.Info("processor created",
		"buffer_size", config.BufferSize,
		"sample_rate", config.SampleRate,
		"channels", config.Channels,
		"input_queue", config.InputQueueSize,
		"output_queue", config.OutputQueueSize)
	return p, nil
}

// ConfigureBufferSize sets the block size. Invalid sizes are rejected with
// ErrConfiguration and leave the processor unchanged.
func (p *Processor) ConfigureBufferSize(size int) error {
	if err := validateBufferSize(size); err != nil {
		return err
	}

	p.mu.Lock()
	p.bufferSize = size
	p.mu.Unlock()

	p.logger.Info("buffer size configured",
		"buffer_size", size,
		"latency_ms", p.CalculateSystemLatency().TotalLatencyMS)
	return nil
}

// ConfigureSampleRate sets the stream rate. Captured audio is discarded.
func (p *Processor) ConfigureSampleRate(sampleRate int) error {
	if err := validateSampleRate(sampleRate); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sampleRate == p.sampleRate {
		return nil
	}
	if err := p.capture.configure(p.captureSeconds, sampleRate, p.channels); err != nil {
		return err
	}
	p.sampleRate = sampleRate

	p.logger.Info("sample rate configured",
		"sample_rate", sampleRate)
	return nil
}

// ConfigureChannels sets the channel count. Captured audio is discarded.
func (p *Processor) ConfigureChannels(channels int) error {
	if err := validateChannels(channels); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if channels == p.channels {
		return nil
	}
	if err := p.capture.configure(p.captureSeconds, p.sampleRate, channels); err != nil {
		return err
	}
	p.channels = channels

	p.logger.Info("channels configured",
		"channels", channels)
	return nil
}

// BufferSize returns the configured block size in frames
func (p *Processor) BufferSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bufferSize
}

// SampleRate returns the configured stream rate
func (p *Processor) SampleRate() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sampleRate
}

// Channels returns the configured channel count
func (p *Processor) Channels() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channels
}

// Chain returns the plugin chain the loop runs
func (p *Processor) Chain() audiocore.ProcessorChain {
	return p.chain
}

// IsProcessing reports whether the loop is running
func (p *Processor) IsProcessing() bool {
	return p.running.Load()
}

// StartProcessing launches the processing loop. It returns false when the
// loop was already running. Cancelling ctx stops the loop.
func (p *Processor) StartProcessing(ctx context.Context) bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running.Load() {
		return false
	}
	// A loop that ended through its parent context still needs joining.
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.wg.Add(1)
	go p.run(loopCtx)

	p.logger.Info("processing started",
		"buffer_size", p.BufferSize(),
		"sample_rate", p.SampleRate())
	return true
}

// StopProcessing stops the loop, waits for it to exit and discards queued
// input and output. It is a no-op when the processor is stopped.
func (p *Processor) StopProcessing() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	p.running.Store(false)

	discarded := drain(p.input) + drain(p.output)
	p.metrics.RecordQueueDepths(0, 0)

	stats := p.stats.snapshot(p.blockPeriod())
	p.logger.Info("processing stopped",
		"processed_buffers", stats.ProcessedBuffers,
		"xruns", stats.Xruns,
		"underruns", stats.BufferUnderruns,
		"discarded_buffers", discarded)
}

func drain(ch chan *audiocore.AudioData) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// Close stops processing and releases the capture ring
func (p *Processor) Close() error {
	p.StopProcessing()
	p.capture.close()
	return nil
}

// ProcessInput queues data for processing without blocking. It returns
// false when data does not match the configured format or the input queue
// is full.
func (p *Processor) ProcessInput(data *audiocore.AudioData) bool {
	if data == nil {
		return false
	}

	p.mu.RLock()
	sampleRate, channels, bufferSize := p.sampleRate, p.channels, p.bufferSize
	p.mu.RUnlock()

	if data.Format.SampleRate != sampleRate ||
		data.Samples.Channels() != channels ||
		data.Frames() != bufferSize ||
		!data.Samples.Valid() {
		p.metrics.RecordInputDropped("format_mismatch")
		return false
	}

	select {
	case p.input <- data:
		return true
	default:
		p.stats.recordDrop()
		p.metrics.RecordInputDropped("queue_full")
		if p.dropWarn.Allow() {
			p.logger.Warn("input queue full, dropping block",
				"queue_capacity", cap(p.input),
				"sequence", data.Sequence)
		}
		return false
	}
}

// GetOutput returns the next processed block, or nil when none is ready.
// An empty queue while running counts as a buffer underrun.
func (p *Processor) GetOutput() *audiocore.AudioData {
	select {
	case out := <-p.output:
		return out
	default:
	}

	if p.running.Load() {
		p.stats.recordUnderrun()
		p.metrics.RecordUnderrun()
		if p.underrunWarn.Allow() {
			p.logger.Warn("output queue empty, buffer underrun",
				"underruns", p.stats.snapshot(0).BufferUnderruns)
		}
	}
	return nil
}

// QueueDepths returns the number of blocks waiting in each queue
func (p *Processor) QueueDepths() (input, output int) {
	return len(p.input), len(p.output)
}

// CalculateSystemLatency derives latency from the stream format and the
// chain. Input and output latency are one block each plus the configured
// device latency.
func (p *Processor) CalculateSystemLatency() LatencyInfo {
	p.mu.RLock()
	bufferSize, sampleRate := p.bufferSize, p.sampleRate
	input := bufferSize + p.inputLatency
	output := bufferSize + p.outputLatency
	p.mu.RUnlock()

	plugin := p.chain.LatencySamples()
	total := input + output + plugin

	return LatencyInfo{
		BufferSize:           bufferSize,
		SampleRate:           sampleRate,
		InputLatencySamples:  input,
		OutputLatencySamples: output,
		PluginLatencySamples: plugin,
		TotalLatencySamples:  total,
		TotalLatencyMS:       float64(total) / float64(sampleRate) * 1000,
		BufferLatencyMS:      float64(bufferSize) / float64(sampleRate) * 1000,
	}
}

// GetLatencyInfo returns the latency of the current configuration
func (p *Processor) GetLatencyInfo() LatencyInfo {
	return p.CalculateSystemLatency()
}

// GetPerformanceStats returns a copy of the processing counters
func (p *Processor) GetPerformanceStats() PerformanceStats {
	return p.stats.snapshot(p.blockPeriod())
}

// ResetPerformanceStats zeroes the processing counters
func (p *Processor) ResetPerformanceStats() {
	p.stats.reset()
}

// GetMeter returns the meter for a channel group
func (p *Processor) GetMeter(group string) (Meter, bool) {
	return p.meters.get(group)
}

// Meters returns every channel group meter
func (p *Processor) Meters() map[string]Meter {
	return p.meters.groups()
}

// ResetMeters clears all meters
func (p *Processor) ResetMeters() {
	p.meters.reset()
}

// blockPeriod is the playback time of one configured block
func (p *Processor) blockPeriod() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.bufferSize) * time.Second / time.Duration(p.sampleRate)
}
