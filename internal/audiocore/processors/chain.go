// Package processors provides the plugin chain invoked by the real-time
// processor and the plugins that ship with it.
package processors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// ErrProcessorNotFound is returned when a processor is not found in the chain
var ErrProcessorNotFound = errors.Newf("processor not found").
	Component(audiocore.ComponentAudioCore).
	Category(errors.CategoryNotFound).
	Context("resource", "processor").
	Build()

// Chain runs blocks through processors in order
type Chain struct {
	processors []audiocore.AudioProcessor
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewChain creates a chain holding processors in order. Duplicate ids are
// rejected.
func NewChain(processors ...audiocore.AudioProcessor) (*Chain, error) {
	c := &Chain{
		processors: make([]audiocore.AudioProcessor, 0, len(processors)),
		logger:     logging.Component("audiocore", "processor_chain"),
	}
	for _, p := range processors {
		if err := c.AddProcessor(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddProcessor appends a processor to the chain
func (c *Chain) AddProcessor(processor audiocore.AudioProcessor) error {
	if processor == nil {
		return errors.Newf("processor cannot be nil").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.processors {
		if p.ID() == processor.ID() {
			return errors.Newf("processor already exists in chain").
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryConflict).
				Context("processor_id", processor.ID()).
				Build()
		}
	}

	c.processors = append(c.processors, processor)
	c.logger.Info("processor added to chain",
		"processor_id", processor.ID(),
		"chain_length", len(c.processors),
		"latency_samples", processor.LatencySamples())
	return nil
}

// RemoveProcessor removes a processor from the chain
func (c *Chain) RemoveProcessor(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.processors {
		if p.ID() == id {
			c.processors = append(c.processors[:i], c.processors[i+1:]...)
			c.logger.Info("processor removed from chain",
				"processor_id", id,
				"remaining_processors", len(c.processors))
			return nil
		}
	}
	return ErrProcessorNotFound
}

// Process runs input through every processor. An empty chain returns input
// unchanged.
func (c *Chain) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := input
	for _, processor := range c.processors {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		processed, err := processor.Process(ctx, current)
		if err != nil {
			return nil, errors.New(err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryProcessing).
				Context("processor_id", processor.ID()).
				Context("operation", "process_audio").
				Build()
		}
		current = processed
	}
	return current, nil
}

// GetProcessors returns all processors in order
func (c *Chain) GetProcessors() []audiocore.AudioProcessor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	processors := make([]audiocore.AudioProcessor, len(c.processors))
	copy(processors, c.processors)
	return processors
}

// LatencySamples returns the sum of processor latencies
func (c *Chain) LatencySamples() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, p := range c.processors {
		total += p.LatencySamples()
	}
	return total
}
