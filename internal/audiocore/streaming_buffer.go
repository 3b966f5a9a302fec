package audiocore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// StreamingBuffer stores samples in a temporary file and keeps recently used
// chunks in a bounded LRU cache. Only the cache is held in memory.
type StreamingBuffer struct {
	mu     sync.Mutex
	id     string
	config BufferConfig
	state  BufferState

	file   *os.File
	path   string
	size   int // frames in the file
	cursor int

	chunkBytes int
	cache      *lru.Cache[int, []byte]
	hits       int64
	misses     int64

	stats  opStats
	logger *slog.Logger
}

// NewStreamingBuffer creates an uninitialised streaming buffer.
func NewStreamingBuffer(id string, config BufferConfig) (*StreamingBuffer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	config.Type = TypeStreaming

	return &StreamingBuffer{
		id:         id,
		config:     config,
		chunkBytes: config.ChunkSize * config.FrameBytes(),
		logger:     logging.Component("audiocore", "streaming_buffer").With("buffer_id", id),
	}, nil
}

// ID returns the buffer id
func (b *StreamingBuffer) ID() string { return b.id }

// Type returns TypeStreaming
func (b *StreamingBuffer) Type() BufferType { return TypeStreaming }

// Config returns the buffer config
func (b *StreamingBuffer) Config() BufferConfig { return b.config }

// State returns the lifecycle state
func (b *StreamingBuffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Path returns the backing file path, empty before Allocate or after Close.
func (b *StreamingBuffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Allocate creates the backing file sized for estimatedFrames and the chunk
// cache. Calling it on an initialised buffer is a no-op.
func (b *StreamingBuffer) Allocate(estimatedFrames int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.state == StateClosed:
		return false
	case b.file != nil:
		return true
	case estimatedFrames < 0:
		b.state = StateError
		b.stats.recordError()
		return false
	}

	file, err := os.CreateTemp(b.config.TempDir, fmt.Sprintf("rtaudio-%s-*.f32", uuid.NewString()))
	if err != nil {
		b.fail(err, "create_temp_file")
		return false
	}
	if err := file.Truncate(int64(estimatedFrames * b.config.FrameBytes())); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		b.fail(err, "truncate_temp_file")
		return false
	}

	cacheMB := b.config.CacheSizeMB
	if b.config.MaxMemoryMB > 0 {
		cacheMB = min(cacheMB, b.config.MaxMemoryMB)
	}
	capacity := max(1, int(cacheMB*bytesPerMB)/b.chunkBytes)
	cache, err := lru.New[int, []byte](capacity)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		b.fail(err, "create_chunk_cache")
		return false
	}

	b.file = file
	b.path = file.Name()
	b.size = estimatedFrames
	b.cursor = 0
	b.cache = cache
	b.state = StateReady

	b.logger.Debug("streaming buffer initialized",
		"path", b.path,
		"estimated_frames", estimatedFrames,
		"cache_chunks", capacity)
	return true
}

// fail records an I/O failure and moves the buffer to StateError.
func (b *StreamingBuffer) fail(err error, operation string) error {
	b.state = StateError
	b.stats.recordError()
	enhanced := errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryFileIO).
		Context("buffer_id", b.id).
		Context("operation", operation).
		Build()
	b.logger.Error("streaming buffer i/o failed",
		"operation", operation,
		"error", err)
	return enhanced
}

func (b *StreamingBuffer) usable() bool {
	return b.file != nil && b.state != StateClosed
}

// Write stores samples at the cursor, growing the file as needed. Cached
// chunks that overlap the write are updated in place.
func (b *StreamingBuffer) Write(samples Block) (int, error) {
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

	frames := samples.Frames()
	frameBytes := b.config.FrameBytes()
	data := make([]byte, frames*frameBytes)
	encodeInto(data, samples, 0, frames)

	offset := int64(b.cursor * frameBytes)
	if _, err := b.file.WriteAt(data, offset); err != nil {
		return 0, b.fail(err, "write")
	}
	b.overlay(offset, data)

	b.cursor += frames
	b.size = max(b.size, b.cursor)
	b.stats.recordWrite(len(data), time.Since(start))
	return frames, nil
}

// Read returns up to frames frames from the cursor, loading chunks through
// the cache.
func (b *StreamingBuffer) Read(frames int) Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	if !b.usable() || frames <= 0 {
		return nil
	}

	n := min(frames, b.size-b.cursor)
	out := NewBlock(b.config.Channels, n)
	frameBytes := b.config.FrameBytes()

	for done := 0; done < n; {
		pos := b.cursor + done
		index := pos / b.config.ChunkSize
		within := pos % b.config.ChunkSize
		span := min(n-done, b.config.ChunkSize-within)

		chunk, err := b.chunk(index)
		if err != nil {
			_ = b.fail(err, "read")
			n = done
			out = out.Slice(0, done)
			break
		}
		decodeInto(out, done, chunk[within*frameBytes:(within+span)*frameBytes])
		done += span
	}

	b.cursor += n
	b.stats.recordRead(n*frameBytes, time.Since(start))
	return out
}

// chunk returns the bytes of chunk index, from cache when possible.
func (b *StreamingBuffer) chunk(index int) ([]byte, error) {
	if data, ok := b.cache.Get(index); ok {
		b.hits++
		return data, nil
	}
	b.misses++

	data := make([]byte, b.chunkBytes)
	if _, err := b.file.ReadAt(data, int64(index*b.chunkBytes)); err != nil && err != io.EOF {
		return nil, err
	}
	b.cache.Add(index, data)
	return data, nil
}

// Seek moves the cursor within [0, Size()]
func (b *StreamingBuffer) Seek(position int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.usable() || position < 0 || position > b.size {
		return false
	}
	b.cursor = position
	return true
}

// Tell returns the cursor position in frames
func (b *StreamingBuffer) Tell() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Size returns the number of frames in the file
func (b *StreamingBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Metrics reports cache memory as MemoryUsageMB along with the hit rate
func (b *StreamingBuffer) Metrics() BufferMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.stats.snapshot()
	if b.cache != nil {
		m.MemoryUsageMB = float64(b.cache.Len()*b.chunkBytes) / bytesPerMB
	}
	if total := b.hits + b.misses; total > 0 {
		m.CacheHitRate = float64(b.hits) / float64(total)
	}
	return m
}

// Reset truncates the file, drops the cache and rewinds
func (b *StreamingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.usable() {
		return
	}
	if err := b.file.Truncate(0); err != nil {
		_ = b.fail(err, "reset")
		return
	}
	b.cache.Purge()
	b.size = 0
	b.cursor = 0
	b.state = StateReady
}

// Close closes and removes the backing file. It is safe to call more than
// once and after a failed Allocate.
func (b *StreamingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	if b.file == nil {
		return nil
	}

	closeErr := b.file.Close()
	removeErr := os.Remove(b.path)
	if os.IsNotExist(removeErr) {
		removeErr = nil
	}

	b.file = nil
	b.path = ""
	b.cache = nil

	if err := errors.Join(closeErr, removeErr); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("buffer_id", b.id).
			Context("operation", "close").
			Build()
	}
	return nil
}

// overlay copies freshly written bytes at offset into any cached chunks
// they cover without promoting them. Chunks that are not cached are left to
// be read from disk.
func (b *StreamingBuffer) overlay(offset int64, data []byte) {
	chunkBytes := int64(b.chunkBytes)
	end := offset + int64(len(data))
	for index := offset / chunkBytes; index*chunkBytes < end; index++ {
		cached, ok := b.cache.Peek(int(index))
		if !ok {
			continue
		}
		chunkStart := index * chunkBytes
		from := max(offset, chunkStart)
		to := min(end, chunkStart+chunkBytes)
		copy(cached[from-chunkStart:to-chunkStart], data[from-offset:to-offset])
	}
}
