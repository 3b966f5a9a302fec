package realtime

import (
	"fmt"
	"sync"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
)

// maxCaptureMB bounds the memory a capture tap may hold
const maxCaptureMB = 256

// captureTap keeps the most recent processed audio for export in a fixed
// circular block. Writes overwrite the oldest frames; both write and
// snapshot copy only the frames they touch while holding the lock.
type captureTap struct {
	mu         sync.Mutex
	data       audiocore.Block // nil when capture is disabled
	pos        int             // next frame to write
	filled     int
	sampleRate int
	channels   int
}

func newCaptureTap(seconds float64, sampleRate, channels int) (*captureTap, error) {
	c := &captureTap{}
	if err := c.configure(seconds, sampleRate, channels); err != nil {
		return nil, err
	}
	return c, nil
}

// configure replaces the storage, discarding captured audio
func (c *captureTap) configure(seconds float64, sampleRate, channels int) error {
	frames := int(seconds * float64(sampleRate))
	if mb := float64(frames) * float64(channels) * 4 / (1024 * 1024); mb > maxCaptureMB {
		return errors.New(fmt.Errorf("%w: capture of %.1f MB exceeds %d MB", audiocore.ErrCapacity, mb, maxCaptureMB)).
			Component(componentRealtime).
			Category(errors.CategoryLimit).
			Context("capture_seconds", seconds).
			Build()
	}

	var data audiocore.Block
	if frames > 0 {
		data = audiocore.NewBlock(channels, frames)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.pos = 0
	c.filled = 0
	c.sampleRate = sampleRate
	c.channels = channels
	return nil
}

// write appends samples, overwriting the oldest captured frames when full
func (c *captureTap) write(samples audiocore.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil || samples.Channels() != c.channels {
		return
	}
	capacity := c.data.Frames()
	if frames := samples.Frames(); frames > capacity {
		samples = samples.Slice(frames-capacity, frames)
	}

	n := samples.Frames()
	first := min(n, capacity-c.pos)
	for ch := range c.data {
		copy(c.data[ch][c.pos:], samples[ch][:first])
		copy(c.data[ch], samples[ch][first:n])
	}
	c.pos = (c.pos + n) % capacity
	c.filled = min(c.filled+n, capacity)
}

// snapshot returns the latest frames frames without consuming them. The
// result is shorter than frames when less audio has been captured.
func (c *captureTap) snapshot(frames int) (audiocore.Block, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := min(max(frames, 0), c.filled)
	out := audiocore.NewBlock(c.channels, n)
	if n == 0 {
		return out, c.sampleRate, c.channels
	}

	capacity := c.data.Frames()
	start := (c.pos - n + capacity) % capacity
	first := min(n, capacity-start)
	for ch := range out {
		copy(out[ch], c.data[ch][start:start+first])
		copy(out[ch][first:], c.data[ch][:n-first])
	}
	return out, c.sampleRate, c.channels
}

func (c *captureTap) available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filled
}

func (c *captureTap) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.pos = 0
	c.filled = 0
}
