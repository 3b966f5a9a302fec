package realtime

import (
	"context"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/export"
	"github.com/tphakala/rtaudio/internal/errors"
)

// ExportAudio renders the most recent duration of processed audio to path.
// When less audio has been captured the remainder is silence. It may be
// called while the loop is running.
func (p *Processor) ExportAudio(ctx context.Context, path string, duration time.Duration, settings export.Settings) (export.Result, error) {
	if duration <= 0 {
		return export.Result{}, errors.Newf("export duration must be positive").
			Component(componentRealtime).
			Category(errors.CategoryValidation).
			Context("duration", duration.String()).
			Build()
	}
	if err := export.ValidateSettings(&settings); err != nil {
		p.metrics.RecordExport(string(settings.Format), err)
		return export.Result{}, err
	}

	p.mu.RLock()
	sampleRate := p.sampleRate
	p.mu.RUnlock()

	frames := int(int64(duration) * int64(sampleRate) / int64(time.Second))
	captured, captureRate, channels := p.capture.snapshot(frames)
	if captureRate != sampleRate {
		frames = int(int64(duration) * int64(captureRate) / int64(time.Second))
	}

	rendered := audiocore.NewBlock(channels, frames)
	for ch := range rendered {
		copy(rendered[ch], captured[ch])
	}

	result, err := export.Export(ctx, path, rendered, captureRate, settings)
	p.metrics.RecordExport(string(settings.Format), err)
	if err != nil {
		p.logger.Error("export failed",
			"path", path,
			"format", settings.Format,
			"error", err)
		return export.Result{}, err
	}

	p.logger.Info("audio exported",
		"path", path,
		"format", settings.Format,
		"frames", result.Frames,
		"captured_frames", captured.Frames(),
		"elapsed_ms", result.Elapsed.Milliseconds())
	return result, nil
}
