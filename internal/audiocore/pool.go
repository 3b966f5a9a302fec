package audiocore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/eapache/queue"

	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// PoolStats holds pool counters
type PoolStats struct {
	CreatedBuffers int64   `json:"created_buffers"`
	PoolHits       int64   `json:"pool_hits"`
	PoolMisses     int64   `json:"pool_misses"`
	PoolSize       int     `json:"pool_size"` // idle buffers
	Evictions      int64   `json:"evictions"`
	HitRate        float64 `json:"hit_rate"`
}

// BufferPool recycles MemoryBuffers of one config. Idle buffers wait in a
// FIFO free-list of at most poolSize entries; releasing into a full list
// evicts the oldest idle buffer.
type BufferPool struct {
	mu       sync.Mutex
	config   BufferConfig
	poolSize int
	name     string
	idle     *queue.Queue // of *MemoryBuffer, oldest first
	closed   bool

	created   int64
	hits      int64
	misses    int64
	evictions int64

	metrics *MetricsCollector
	logger  *slog.Logger
}

// PoolOption configures a BufferPool
type PoolOption func(*BufferPool)

// WithPoolMetrics reports pool activity to mc
func WithPoolMetrics(mc *MetricsCollector) PoolOption {
	return func(p *BufferPool) {
		p.metrics = mc
	}
}

// NewBufferPool creates a pool handing out buffers of config.BufferSize frames.
func NewBufferPool(config BufferConfig, poolSize int, opts ...PoolOption) (*BufferPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if poolSize <= 0 {
		return nil, configError("pool_size", poolSize, "pool size must be positive")
	}

	config = config.withDefaults()
	config.Type = TypeMemory
	p := &BufferPool{
		config:   config,
		poolSize: poolSize,
		name:     config.poolKey(),
		idle:     queue.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Component("audiocore", "buffer_pool").With("pool", p.name)
	return p, nil
}

// Name identifies the pool by its buffer shape
func (p *BufferPool) Name() string { return p.name }

// Config returns the config of pooled buffers
func (p *BufferPool) Config() BufferConfig { return p.config }

// Acquire returns the oldest idle buffer renamed to id and reset, or a newly
// allocated one when the free-list is empty.
func (p *BufferPool) Acquire(id string) (*MemoryBuffer, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New(fmt.Errorf("%w: pool %s", ErrBufferClosed, p.name)).
			Component(ComponentAudioCore).
			Category(errors.CategoryState).
			Build()
	}
	if p.idle.Length() > 0 {
		buf := p.idle.Remove().(*MemoryBuffer)
		p.hits++
		idle := p.idle.Length()
		p.mu.Unlock()

		buf.rename(id)
		buf.Reset()
		p.metrics.RecordPoolAcquire(p.name, true, idle)
		return buf, nil
	}
	p.misses++
	idle := p.idle.Length()
	p.mu.Unlock()

	p.metrics.RecordPoolAcquire(p.name, false, idle)

	buf, err := NewMemoryBuffer(id, p.config)
	if err != nil {
		return nil, err
	}
	if !buf.Allocate(p.config.BufferSize) {
		p.metrics.RecordCapacityRejection("buffer")
		return nil, errors.New(fmt.Errorf("%w: %d frames exceed %.1f MB", ErrCapacity, p.config.BufferSize, p.config.MaxMemoryMB)).
			Component(ComponentAudioCore).
			Category(errors.CategoryLimit).
			Context("pool", p.name).
			Build()
	}

	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	return buf, nil
}

// Release returns buf to the free-list. Nil, closed and incompatible buffers
// are not pooled; the latter two are closed. Release reports whether buf was
// pooled.
func (p *BufferPool) Release(buf Buffer) bool {
	if buf == nil {
		return false
	}
	mb, ok := buf.(*MemoryBuffer)
	if !ok || mb.State() == StateClosed || !p.config.compatible(mb.Config()) || mb.Size() != p.config.BufferSize {
		_ = buf.Close()
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = mb.Close()
		return false
	}
	for i := range p.idle.Length() {
		if p.idle.Get(i) == mb {
			p.mu.Unlock()
			return true
		}
	}

	var evicted *MemoryBuffer
	if p.idle.Length() >= p.poolSize {
		evicted = p.idle.Remove().(*MemoryBuffer)
		p.evictions++
	}
	p.idle.Add(mb)
	idle := p.idle.Length()
	p.mu.Unlock()

	if evicted != nil {
		_ = evicted.Close()
		p.logger.Debug("evicted idle buffer", "evicted_id", evicted.ID())
	}
	p.metrics.RecordPoolRelease(p.name, evicted != nil, idle)
	return true
}

// Stats returns a snapshot of the pool counters
func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		CreatedBuffers: p.created,
		PoolHits:       p.hits,
		PoolMisses:     p.misses,
		PoolSize:       p.idle.Length(),
		Evictions:      p.evictions,
	}
	if total := p.hits + p.misses; total > 0 {
		stats.HitRate = float64(p.hits) / float64(total)
	}
	return stats
}

// IdleMemoryMB returns the memory held by idle buffers
func (p *BufferPool) IdleMemoryMB() float64 {
	p.mu.Lock()
	idle := p.idle.Length()
	p.mu.Unlock()
	return float64(idle*p.config.BufferSize*p.config.FrameBytes()) / bytesPerMB
}

// Close closes every idle buffer. Buffers on loan are closed when released.
func (p *BufferPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	drained := make([]*MemoryBuffer, 0, p.idle.Length())
	for p.idle.Length() > 0 {
		drained = append(drained, p.idle.Remove().(*MemoryBuffer))
	}
	p.mu.Unlock()

	for _, buf := range drained {
		_ = buf.Close()
	}
	p.metrics.RecordPoolRelease(p.name, false, 0)
}
