package audiocore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// ringStore abstracts the byte ring so tests can inject their own.
type ringStore interface {
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
	Length() int
	Capacity() int
	Free() int
	Reset()
}

// RingBufferWrapper adapts a non-blocking byte ring into a bounded FIFO of
// frames. Writes beyond the free space are rejected, never overwritten.
type RingBufferWrapper struct {
	mu     sync.Mutex
	id     string
	config BufferConfig
	state  BufferState
	ring   ringStore
	stats  opStats
	logger *slog.Logger

	newRing func(size int) ringStore
}

// NewRingBufferWrapper creates an unallocated ring buffer.
func NewRingBufferWrapper(id string, config BufferConfig) (*RingBufferWrapper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	config.Type = TypeRing

	return &RingBufferWrapper{
		id:      id,
		config:  config,
		logger:  logging.Component("audiocore", "ring_buffer").With("buffer_id", id),
		newRing: func(size int) ringStore { return ringbuffer.New(size) },
	}, nil
}

// ID returns the buffer id
func (r *RingBufferWrapper) ID() string { return r.id }

// Type returns TypeRing
func (r *RingBufferWrapper) Type() BufferType { return TypeRing }

// Config returns the buffer config
func (r *RingBufferWrapper) Config() BufferConfig { return r.config }

// State returns the lifecycle state
func (r *RingBufferWrapper) State() BufferState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Allocate creates the ring with room for capacity frames.
func (r *RingBufferWrapper) Allocate(capacity int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return false
	}
	if capacity <= 0 || r.config.exceedsMemoryLimit(capacity) {
		r.state = StateError
		r.stats.recordError()
		return false
	}

	r.ring = r.newRing(capacity * r.config.FrameBytes())
	r.state = StateReady
	return true
}

func (r *RingBufferWrapper) usable() bool {
	return r.ring != nil && r.state != StateClosed
}

// Write enqueues min(frames, Free()) frames and returns that count.
func (r *RingBufferWrapper) Write(samples Block) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	if !r.usable() {
		return 0, nil
	}
	if err := checkShape(samples, r.config.Channels); err != nil {
		r.state = StateError
		r.stats.recordError()
		return 0, err
	}

	frameBytes := r.config.FrameBytes()
	n := min(samples.Frames(), r.ring.Free()/frameBytes)
	if n == 0 {
		return 0, nil
	}

	data := make([]byte, n*frameBytes)
	encodeInto(data, samples, 0, n)
	written, err := r.ring.Write(data)
	if err != nil {
		r.stats.recordError()
		r.logger.Warn("ring write failed",
			"requested_bytes", len(data),
			"written_bytes", written,
			"error", err)
		return written / frameBytes, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryBuffer).
			Context("buffer_id", r.id).
			Build()
	}

	r.stats.recordWrite(written, time.Since(start))
	return n, nil
}

// Read dequeues up to frames frames. An empty ring yields an empty block
// immediately.
func (r *RingBufferWrapper) Read(frames int) Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	if !r.usable() || frames <= 0 {
		return nil
	}

	frameBytes := r.config.FrameBytes()
	n := min(frames, r.ring.Length()/frameBytes)
	if n == 0 {
		return NewBlock(r.config.Channels, 0)
	}

	data := make([]byte, n*frameBytes)
	read, err := r.ring.Read(data)
	if err != nil {
		r.stats.recordError()
	}
	out := BlockFromBytes(data[:read], r.config.Channels)
	r.stats.recordRead(read, time.Since(start))
	return out
}

// Seek always fails; a FIFO has no random access.
func (r *RingBufferWrapper) Seek(int) bool { return false }

// Tell returns the number of frames waiting to be read.
func (r *RingBufferWrapper) Tell() int { return r.Available() }

// Available returns the number of frames waiting to be read.
func (r *RingBufferWrapper) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.usable() {
		return 0
	}
	return r.ring.Length() / r.config.FrameBytes()
}

// Free returns the number of frames that can be written.
func (r *RingBufferWrapper) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.usable() {
		return 0
	}
	return r.ring.Free() / r.config.FrameBytes()
}

// Size returns the ring capacity in frames
func (r *RingBufferWrapper) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring == nil {
		return 0
	}
	return r.ring.Capacity() / r.config.FrameBytes()
}

// Metrics returns a copy of the ring counters
func (r *RingBufferWrapper) Metrics() BufferMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.stats.snapshot()
	if r.ring != nil {
		m.MemoryUsageMB = float64(r.ring.Capacity()) / bytesPerMB
	}
	return m
}

// Reset discards all queued frames
func (r *RingBufferWrapper) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usable() {
		r.ring.Reset()
		r.state = StateReady
	}
}

// Close releases the ring. Closing twice is a no-op.
func (r *RingBufferWrapper) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = nil
	r.state = StateClosed
	return nil
}
