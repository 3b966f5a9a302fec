package processors

import (
	"context"
	"sync"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
)

// DelayProcessor delays every channel by a fixed number of samples. It
// models a plugin with lookahead and reports that delay as its latency.
type DelayProcessor struct {
	id      string
	samples int

	mu   sync.Mutex
	tail audiocore.Block // last samples frames of the previous block
}

// NewDelayProcessor creates a delay of samples frames
func NewDelayProcessor(id string, samples int) (*DelayProcessor, error) {
	if samples < 0 {
		return nil, errors.Newf("delay must not be negative").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("samples", samples).
			Build()
	}
	return &DelayProcessor{id: id, samples: samples}, nil
}

// ID returns a unique identifier for this processor
func (d *DelayProcessor) ID() string { return d.id }

// LatencySamples returns the configured delay
func (d *DelayProcessor) LatencySamples() int { return d.samples }

// Process shifts input by the delay, carrying the overflow into the next call
func (d *DelayProcessor) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
	if input == nil {
		return nil, errors.Newf("input audio data is nil").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if d.samples == 0 {
		return input, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	channels := input.Samples.Channels()
	frames := input.Frames()
	if d.tail.Channels() != channels {
		d.tail = audiocore.NewBlock(channels, d.samples)
	}

	// joined = tail followed by input; output is its head, tail its end
	joined := audiocore.NewBlock(channels, d.samples+frames)
	for ch := range channels {
		copy(joined[ch], d.tail[ch])
		copy(joined[ch][d.samples:], input.Samples[ch])
	}

	output := *input
	output.Samples = joined.Slice(0, frames).Clone()
	d.tail = joined.Slice(frames, frames+d.samples).Clone()
	return &output, nil
}
