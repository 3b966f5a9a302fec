package processors

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// Gain limits
const (
	MinGain = 0.0
	MaxGain = 10.0
)

// GainProcessor applies gain adjustment to audio data
type GainProcessor struct {
	id        string
	gain      atomic.Value // stores float64
	clipCount atomic.Uint64
	logger    *slog.Logger
}

// NewGainProcessor creates a new gain processor
func NewGainProcessor(id string, initialGain float64) (*GainProcessor, error) {
	if err := validateGain(initialGain); err != nil {
		return nil, err
	}

	logger := logging.Component("audiocore", "gain_processor").With("processor_id", id)
	processor := &GainProcessor{
		id:     id,
		logger: logger,
	}
	processor.gain.Store(initialGain)

	logger.Info("gain processor created",
		"initial_gain", initialGain)
	return processor, nil
}

func validateGain(gain float64) error {
	if gain < MinGain || gain > MaxGain {
		return errors.New(nil).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("gain", gain).
			Context("error", "gain must be between 0.0 and 10.0").
			Build()
	}
	return nil
}

// ID returns a unique identifier for this processor
func (gp *GainProcessor) ID() string {
	return gp.id
}

// LatencySamples returns 0; gain adds no delay
func (gp *GainProcessor) LatencySamples() int {
	return 0
}

// Process scales every sample and clips the result to [-1, 1]
func (gp *GainProcessor) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
	if input == nil {
		return nil, errors.New(nil).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("error", "input audio data is nil").
			Build()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	gain := gp.GetGain()
	if gain == 1.0 {
		return input, nil
	}

	output := *input
	output.Samples = input.Samples.Clone()

	var clipped uint64
	g := float32(gain)
	for _, row := range output.Samples {
		for i, s := range row {
			v := s * g
			switch {
			case v > 1.0:
				v = 1.0
				clipped++
			case v < -1.0:
				v = -1.0
				clipped++
			}
			row[i] = v
		}
	}
	if clipped > 0 {
		gp.clipCount.Add(clipped)
	}
	return &output, nil
}

// SetGain updates the gain value
func (gp *GainProcessor) SetGain(gain float64) error {
	if err := validateGain(gain); err != nil {
		return err
	}
	gp.gain.Store(gain)
	gp.logger.Info("gain updated",
		"new_gain", gain)
	return nil
}

// GetGain returns the current gain value
func (gp *GainProcessor) GetGain() float64 {
	return gp.gain.Load().(float64)
}

// ClipCount returns the number of samples clipped so far
func (gp *GainProcessor) ClipCount() uint64 {
	return gp.clipCount.Load()
}
