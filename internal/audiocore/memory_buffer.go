package audiocore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// MemoryBuffer is a fixed capacity in-memory sample store with a cursor.
type MemoryBuffer struct {
	mu     sync.Mutex
	id     string
	config BufferConfig
	state  BufferState
	data   Block
	cursor int
	stats  opStats
	logger *slog.Logger
}

// NewMemoryBuffer creates an unallocated memory buffer.
func NewMemoryBuffer(id string, config BufferConfig) (*MemoryBuffer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	config.Type = TypeMemory

	return &MemoryBuffer{
		id:     id,
		config: config,
		logger: logging.Component("audiocore", "memory_buffer").With("buffer_id", id),
	}, nil
}

// ID returns the buffer id
func (b *MemoryBuffer) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// Type returns TypeMemory
func (b *MemoryBuffer) Type() BufferType { return TypeMemory }

// Config returns the buffer config
func (b *MemoryBuffer) Config() BufferConfig { return b.config }

// State returns the lifecycle state
func (b *MemoryBuffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allocate reserves size frames. It fails when size is not positive or would
// exceed MaxMemoryMB; the buffer then enters StateError.
func (b *MemoryBuffer) Allocate(size int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return false
	}
	if size <= 0 || b.config.exceedsMemoryLimit(size) {
		b.state = StateError
		b.stats.recordError()
		b.logger.Debug("allocation rejected",
			"frames", size,
			"max_memory_mb", b.config.MaxMemoryMB)
		return false
	}

	b.data = NewBlock(b.config.Channels, size)
	b.cursor = 0
	b.state = StateReady
	return true
}

// usable reports whether storage exists. A buffer in StateError after a
// shape mismatch keeps working.
func (b *MemoryBuffer) usable() bool {
	return b.data != nil && b.state != StateClosed
}

// Write copies as many frames as fit between the cursor and the end of the
// buffer and returns that count.
func (b *MemoryBuffer) Write(samples Block) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	if !b.usable() {
		return 0, nil
	}
	if err := checkShape(samples, b.config.Channels); err != nil {
		b.state = StateError
		b.stats.recordError()
		return 0, err
	}

	n := min(samples.Frames(), b.data.Frames()-b.cursor)
	for ch, row := range samples {
		copy(b.data[ch][b.cursor:b.cursor+n], row[:n])
	}
	b.cursor += n
	b.stats.recordWrite(n*b.config.FrameBytes(), time.Since(start))
	return n, nil
}

// Read returns up to frames frames from the cursor and advances it.
func (b *MemoryBuffer) Read(frames int) Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	if !b.usable() || frames <= 0 {
		return nil
	}

	n := min(frames, b.data.Frames()-b.cursor)
	out := b.data.Slice(b.cursor, b.cursor+n).Clone()
	b.cursor += n
	b.stats.recordRead(n*b.config.FrameBytes(), time.Since(start))
	return out
}

// Seek moves the cursor. Positions outside [0, Size()] are rejected.
func (b *MemoryBuffer) Seek(position int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.usable() || position < 0 || position > b.data.Frames() {
		return false
	}
	b.cursor = position
	return true
}

// Tell returns the cursor position in frames
func (b *MemoryBuffer) Tell() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Size returns the allocated capacity in frames
func (b *MemoryBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data.Frames()
}

// Metrics returns a copy of the buffer counters
func (b *MemoryBuffer) Metrics() BufferMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.stats.snapshot()
	m.MemoryUsageMB = float64(b.data.Frames()*b.config.FrameBytes()) / bytesPerMB
	return m
}

// Reset zeroes the samples and rewinds the cursor
func (b *MemoryBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.usable() {
		return
	}
	for _, row := range b.data {
		clear(row)
	}
	b.cursor = 0
	b.state = StateReady
}

// Close releases the samples. Closing twice is a no-op.
func (b *MemoryBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = nil
	b.cursor = 0
	b.state = StateClosed
	return nil
}

// rename gives a recycled pool buffer the id of its new borrower.
func (b *MemoryBuffer) rename(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
	b.logger = logging.Component("audiocore", "memory_buffer").With("buffer_id", id)
}

// checkShape rejects malformed blocks and channel count mismatches.
func checkShape(samples Block, channels int) error {
	if samples.Channels() == channels && samples.Valid() {
		return nil
	}
	return errors.New(fmt.Errorf("%w: got %d channels, want %d", ErrShapeMismatch, samples.Channels(), channels)).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("expected_channels", channels).
		Context("actual_channels", samples.Channels()).
		Build()
}
