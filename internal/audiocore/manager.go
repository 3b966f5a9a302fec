package audiocore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// Manager defaults
const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultPoolSize        = 8

	// memoryWarnRatio of TotalMemoryMB triggers a monitor warning
	memoryWarnRatio = 0.9
)

// ManagerConfig configures an AudioBufferManager
type ManagerConfig struct {
	TotalMemoryMB   float64       // ceiling across all buffers, 0 disables it
	MonitorInterval time.Duration // period of the background memory monitor
	PoolSize        int           // idle buffers per pool for TypePool buffers
	Metrics         *MetricsCollector
}

// SystemMetrics aggregates all live buffers at call time.
type SystemMetrics struct {
	TotalBuffers          int            `json:"total_buffers"`
	TotalMemoryMB         float64        `json:"total_memory_mb"`
	BufferTypes           map[string]int `json:"buffer_types"`
	PoolIdleMemoryMB      float64        `json:"pool_idle_memory_mb"`
	BufferErrors          int64          `json:"buffer_errors"`
	HostMemoryUsedPercent float64        `json:"host_memory_used_percent"`
	LastMonitorAt         time.Time      `json:"last_monitor_at"`
}

// bufferEntry is one registered buffer.
type bufferEntry struct {
	buf        Buffer
	kind       BufferType
	pool       *BufferPool  // set for TypePool entries
	seenErrors atomic.Int64 // ErrorCount already published
}

// AudioBufferManager is the registry of live buffers by id.
type AudioBufferManager struct {
	config ManagerConfig

	mu      sync.RWMutex
	entries map[string]*bufferEntry

	poolsMu sync.Mutex
	pools   map[string]*BufferPool

	monitorMu     sync.Mutex
	hostPercent   float64
	lastMonitorAt time.Time

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool

	// hostMemory is swapped in tests
	hostMemory func() (float64, error)

	logger *slog.Logger
}

// NewAudioBufferManager creates an empty manager. Call Start to run the
// memory monitor and Close to release every buffer.
func NewAudioBufferManager(config ManagerConfig) (*AudioBufferManager, error) {
	if config.TotalMemoryMB < 0 {
		return nil, configError("total_memory_mb", config.TotalMemoryMB, "memory ceiling must not be negative")
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = DefaultMonitorInterval
	}
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}

	return &AudioBufferManager{
		config:     config,
		entries:    make(map[string]*bufferEntry),
		pools:      make(map[string]*BufferPool),
		hostMemory: hostMemoryPercent,
		logger:     logging.Component("audiocore", "buffer_manager"),
	}, nil
}

func hostMemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// CreateBuffer registers a new buffer of bufferType under id, or returns the
// existing buffer when id is already registered. An empty id is replaced
// with a random one.
func (m *AudioBufferManager) CreateBuffer(id string, bufferType BufferType, config BufferConfig) (Buffer, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.RLock()
	existing, ok := m.entries[id]
	closed := m.isClosed()
	m.mu.RUnlock()
	if ok {
		return existing.buf, nil
	}
	if closed {
		return nil, m.closedError()
	}

	config.Type = bufferType
	if err := config.Validate(); err != nil {
		return nil, err
	}

	entry, err := m.build(id, bufferType, config)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if winner, ok := m.entries[id]; ok {
		m.mu.Unlock()
		m.discard(entry)
		return winner.buf, nil
	}
	if m.isClosed() {
		m.mu.Unlock()
		m.discard(entry)
		return nil, m.closedError()
	}
	if m.exceedsCeiling(entry) {
		m.mu.Unlock()
		m.discard(entry)
		m.config.Metrics.RecordCapacityRejection("manager")
		return nil, errors.New(fmt.Errorf("%w: manager ceiling of %.1f MB reached", ErrCapacity, m.config.TotalMemoryMB)).
			Component(ComponentAudioCore).
			Category(errors.CategoryLimit).
			Context("buffer_id", id).
			Context("total_memory_mb", m.config.TotalMemoryMB).
			Build()
	}
	m.entries[id] = entry
	m.mu.Unlock()

	m.logger.Debug("buffer created",
		"buffer_id", id,
		"buffer_type", bufferType.String())
	return entry.buf, nil
}

// build constructs and allocates a buffer without touching the registry.
func (m *AudioBufferManager) build(id string, bufferType BufferType, config BufferConfig) (*bufferEntry, error) {
	var (
		buf Buffer
		err error
	)
	switch bufferType {
	case TypePool:
		pool, perr := m.poolFor(config)
		if perr != nil {
			return nil, perr
		}
		mb, aerr := pool.Acquire(id)
		if aerr != nil {
			return nil, aerr
		}
		return &bufferEntry{buf: mb, kind: TypePool, pool: pool}, nil
	case TypeMemory:
		buf, err = NewMemoryBuffer(id, config)
	case TypeStreaming:
		buf, err = NewStreamingBuffer(id, config)
	case TypeRing:
		buf, err = NewRingBufferWrapper(id, config)
	}
	if err != nil {
		return nil, err
	}

	if !buf.Allocate(config.BufferSize) {
		_ = buf.Close()
		m.config.Metrics.RecordCapacityRejection("buffer")
		return nil, errors.New(fmt.Errorf("%w: cannot allocate %d frames for %s buffer", ErrCapacity, config.BufferSize, bufferType)).
			Component(ComponentAudioCore).
			Category(errors.CategoryLimit).
			Context("buffer_id", id).
			Context("max_memory_mb", config.MaxMemoryMB).
			Build()
	}
	return &bufferEntry{buf: buf, kind: bufferType}, nil
}

// poolFor returns the pool serving config, creating it on first use.
func (m *AudioBufferManager) poolFor(config BufferConfig) (*BufferPool, error) {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	key := config.poolKey()
	if pool, ok := m.pools[key]; ok {
		return pool, nil
	}
	pool, err := NewBufferPool(config, m.config.PoolSize, WithPoolMetrics(m.config.Metrics))
	if err != nil {
		return nil, err
	}
	m.pools[key] = pool
	return pool, nil
}

// exceedsCeiling reports whether adding entry would overflow TotalMemoryMB.
// Caller holds m.mu.
func (m *AudioBufferManager) exceedsCeiling(entry *bufferEntry) bool {
	if m.config.TotalMemoryMB == 0 {
		return false
	}
	total := entry.buf.Metrics().MemoryUsageMB
	for _, e := range m.entries {
		total += e.buf.Metrics().MemoryUsageMB
	}
	return total > m.config.TotalMemoryMB
}

// discard returns an unregistered entry to its pool or closes it.
func (m *AudioBufferManager) discard(entry *bufferEntry) {
	if entry.pool != nil {
		entry.pool.Release(entry.buf)
		return
	}
	if err := entry.buf.Close(); err != nil {
		m.logger.Warn("failed to close buffer", "buffer_id", entry.buf.ID(), "error", err)
	}
}

// GetBuffer returns the buffer registered under id
func (m *AudioBufferManager) GetBuffer(id string) (Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return entry.buf, true
}

// RemoveBuffer forgets id and closes its buffer, or returns a pooled buffer
// to its pool. It reports whether id was registered.
func (m *AudioBufferManager) RemoveBuffer(id string) bool {
	m.mu.Lock()
	entry, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.discard(entry)
	m.logger.Debug("buffer removed", "buffer_id", id)
	return true
}

// ListBuffers returns registered ids in sorted order
func (m *AudioBufferManager) ListBuffers() []string {
	m.mu.RLock()
	ids := slices.Collect(maps.Keys(m.entries))
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// snapshot copies the entries so buffer methods run without the registry lock.
func (m *AudioBufferManager) snapshot() []*bufferEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Values(m.entries))
}

// GetSystemMetrics aggregates all live buffers now.
func (m *AudioBufferManager) GetSystemMetrics() SystemMetrics {
	entries := m.snapshot()

	sm := SystemMetrics{
		TotalBuffers: len(entries),
		BufferTypes:  make(map[string]int),
	}
	for _, e := range entries {
		bm := e.buf.Metrics()
		sm.TotalMemoryMB += bm.MemoryUsageMB
		sm.BufferErrors += bm.ErrorCount
		sm.BufferTypes[e.kind.String()]++
	}

	m.poolsMu.Lock()
	for _, pool := range m.pools {
		sm.PoolIdleMemoryMB += pool.IdleMemoryMB()
	}
	m.poolsMu.Unlock()

	m.monitorMu.Lock()
	sm.HostMemoryUsedPercent = m.hostPercent
	sm.LastMonitorAt = m.lastMonitorAt
	m.monitorMu.Unlock()
	return sm
}

// PoolStats returns the stats of every pool keyed by pool name
func (m *AudioBufferManager) PoolStats() map[string]PoolStats {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	stats := make(map[string]PoolStats, len(m.pools))
	for name, pool := range m.pools {
		stats[name] = pool.Stats()
	}
	return stats
}

// Start launches the background memory monitor. It returns immediately;
// calling it again while running is a no-op.
func (m *AudioBufferManager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.closed {
		return m.closedError()
	}
	if m.cancel != nil {
		return nil
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Go(func() {
		m.monitor(monitorCtx)
	})

	m.logger.Info("buffer manager started",
		"monitor_interval", m.config.MonitorInterval,
		"total_memory_mb", m.config.TotalMemoryMB)
	return nil
}

// monitor samples buffer and host memory until ctx is cancelled.
func (m *AudioBufferManager) monitor(ctx context.Context) {
	ticker := time.NewTicker(m.config.MonitorInterval)
	defer ticker.Stop()

	m.sampleMemory()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleMemory()
		}
	}
}

// sampleMemory records one monitor pass. It never holds the registry lock
// while calling into buffers.
func (m *AudioBufferManager) sampleMemory() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("memory monitor pass panicked", "panic", r)
		}
	}()

	sm := m.GetSystemMetrics()

	percent, err := m.hostMemory()
	if err != nil {
		m.logger.Debug("host memory unavailable", "error", err)
	}

	m.monitorMu.Lock()
	if err == nil {
		m.hostPercent = percent
	}
	m.lastMonitorAt = time.Now()
	m.monitorMu.Unlock()

	m.config.Metrics.RecordBufferCounts(sm.BufferTypes, sm.TotalMemoryMB)
	m.publishErrors()
	if err == nil {
		m.config.Metrics.RecordHostMemory(percent)
	}

	if m.config.TotalMemoryMB > 0 && sm.TotalMemoryMB > m.config.TotalMemoryMB*memoryWarnRatio {
		m.logger.Warn("buffer memory near ceiling",
			"total_memory_mb", sm.TotalMemoryMB,
			"ceiling_mb", m.config.TotalMemoryMB,
			"buffers", sm.TotalBuffers)
	}
}

// publishErrors forwards errors each buffer counted since the last pass
func (m *AudioBufferManager) publishErrors() {
	for _, e := range m.snapshot() {
		count := e.buf.Metrics().ErrorCount
		if delta := count - e.seenErrors.Swap(count); delta > 0 {
			m.config.Metrics.RecordBufferErrors(e.kind, "operation", delta)
			m.logger.Debug("buffer errors recorded",
				"buffer_id", e.buf.ID(),
				"errors", delta)
		}
	}
}

// Close stops the monitor, closes every registered buffer concurrently and
// closes the pools. It is idempotent.
func (m *AudioBufferManager) Close() error {
	m.lifecycleMu.Lock()
	if m.closed {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	m.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	entries := slices.Collect(maps.Values(m.entries))
	clear(m.entries)
	m.mu.Unlock()

	var g errgroup.Group
	for _, entry := range entries {
		g.Go(func() error {
			if entry.pool != nil {
				entry.pool.Release(entry.buf)
				return nil
			}
			return entry.buf.Close()
		})
	}
	err := g.Wait()

	m.poolsMu.Lock()
	for _, pool := range m.pools {
		pool.Close()
	}
	m.poolsMu.Unlock()

	m.logger.Info("buffer manager closed", "buffers_closed", len(entries))
	return err
}

func (m *AudioBufferManager) isClosed() bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.closed
}

func (m *AudioBufferManager) closedError() error {
	return errors.New(fmt.Errorf("%w: buffer manager", ErrBufferClosed)).
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Build()
}
