package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// run is the processing loop. It exits when ctx is cancelled.
func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()
	defer p.running.Store(false)

	timer := time.NewTimer(p.waitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-p.input:
			p.processBlock(ctx, data)
		case <-timer.C:
			p.metrics.RecordQueueDepths(len(p.input), len(p.output))
		}
		timer.Reset(p.waitTimeout)
	}
}

// processBlock runs one block through the chain and publishes the result.
// Chain failures are counted and the block is dropped.
func (p *Processor) processBlock(ctx context.Context, data *audiocore.AudioData) {
	start := time.Now()
	out, err := p.applyChain(ctx, data)
	elapsed := time.Since(start)

	if err == nil && (out == nil || !out.Samples.Valid()) {
		err = errors.New(fmt.Errorf("%w: chain returned an invalid block", audiocore.ErrProcessingFailure)).
			Component(componentRealtime).
			Category(errors.CategoryProcessing).
			Build()
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.stats.recordFailure()
		p.metrics.RecordProcessingFailure(failureKind(err))
		p.metrics.RecordXrun("processing_failure")
		if p.xrunWarn.Allow() {
			p.logger.Warn("plugin chain failed, block dropped",
				"sequence", data.Sequence,
				"error", err)
		}
		return
	}

	if p.stats.recordProcessed(elapsed, data.Duration()) {
		p.metrics.RecordXrun("deadline")
		if p.xrunWarn.Allow() {
			p.logger.Warn("processing exceeded block period",
				"elapsed_ms", float64(elapsed)/float64(time.Millisecond),
				"period_ms", float64(data.Duration())/float64(time.Millisecond))
		}
	}
	p.metrics.RecordBlockProcessed(elapsed)
	if p.logger.Enabled(ctx, logging.LevelTrace) {
		p.logger.Log(ctx, logging.LevelTrace, "block processed",
			"sequence", data.Sequence,
			"elapsed_us", elapsed.Microseconds())
	}

	group := out.MeterGroup()
	if p.meters.update(group, out.Samples) {
		p.metrics.RecordClip(group)
	}
	p.capture.write(out.Samples)

	select {
	case p.output <- out:
	default:
		p.stats.recordXrun()
		p.metrics.RecordXrun("output_full")
		if p.xrunWarn.Allow() {
			p.logger.Warn("output queue full, processed block dropped",
				"queue_capacity", cap(p.output),
				"sequence", out.Sequence)
		}
	}
}

// errChainPanic marks failures recovered from a panicking plugin
var errChainPanic = errors.NewStd("plugin panic")

// applyChain calls the chain, converting a panic into an error
func (p *Processor) applyChain(ctx context.Context, data *audiocore.AudioData) (out *audiocore.AudioData, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.New(fmt.Errorf("%w: %w: %v", audiocore.ErrProcessingFailure, errChainPanic, r)).
				Component(componentRealtime).
				Category(errors.CategoryProcessing).
				Context("sequence", data.Sequence).
				Build()
		}
	}()
	return p.chain.Process(ctx, data)
}

func failureKind(err error) string {
	if errors.Is(err, errChainPanic) {
		return "panic"
	}
	return "error"
}
