package audiocore

import (
	"fmt"
	"maps"
	"strings"

	"github.com/tphakala/rtaudio/internal/errors"
)

// BufferType selects the buffer variant.
type BufferType int

const (
	TypeMemory BufferType = iota
	TypeStreaming
	TypeRing
	TypePool
)

// String returns the lowercase name of the buffer type
func (t BufferType) String() string {
	switch t {
	case TypeMemory:
		return "memory"
	case TypeStreaming:
		return "streaming"
	case TypeRing:
		return "ring"
	case TypePool:
		return "pool"
	default:
		return "unknown"
	}
}

// ParseBufferType converts a name as produced by String back to a BufferType.
func ParseBufferType(name string) (BufferType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "memory":
		return TypeMemory, nil
	case "streaming":
		return TypeStreaming, nil
	case "ring":
		return TypeRing, nil
	case "pool":
		return TypePool, nil
	}
	return 0, configError("buffer_type", name, "unknown buffer type")
}

// Defaults applied to zero valued BufferConfig fields.
const (
	DefaultChunkSize   = 4096 // frames
	DefaultCacheSizeMB = 64.0

	bytesPerSample = 4
	bytesPerMB     = 1024 * 1024
)

// BufferConfig is the validated parameter bundle shared by all buffer types.
type BufferConfig struct {
	Type        BufferType
	SampleRate  int
	Channels    int
	BufferSize  int     // frames allocated by the manager and the pool
	MaxMemoryMB float64 // per buffer memory limit, 0 means no limit
	ChunkSize   int     // streaming chunk size in frames
	CacheSizeMB float64 // streaming chunk cache size
	TempDir     string  // streaming file directory, empty for the os default
	Labels      map[string]string
}

// NewBufferConfig returns a validated config with defaults applied.
func NewBufferConfig(bufferType BufferType, sampleRate, channels, bufferSize int, maxMemoryMB float64) (BufferConfig, error) {
	cfg := BufferConfig{
		Type:        bufferType,
		SampleRate:  sampleRate,
		Channels:    channels,
		BufferSize:  bufferSize,
		MaxMemoryMB: maxMemoryMB,
	}
	if err := cfg.Validate(); err != nil {
		return BufferConfig{}, err
	}
	return cfg.withDefaults(), nil
}

// Validate rejects out of range values. Values are never clamped.
func (c BufferConfig) Validate() error {
	switch {
	case c.Type < TypeMemory || c.Type > TypePool:
		return configError("buffer_type", int(c.Type), "unknown buffer type")
	case c.SampleRate <= 0:
		return configError("sample_rate", c.SampleRate, "sample rate must be positive")
	case c.Channels <= 0:
		return configError("channels", c.Channels, "channel count must be positive")
	case c.BufferSize <= 0:
		return configError("buffer_size", c.BufferSize, "buffer size must be positive")
	case c.MaxMemoryMB < 0:
		return configError("max_memory_mb", c.MaxMemoryMB, "memory limit must not be negative")
	case c.ChunkSize < 0:
		return configError("chunk_size", c.ChunkSize, "chunk size must not be negative")
	case c.CacheSizeMB < 0:
		return configError("cache_size_mb", c.CacheSizeMB, "cache size must not be negative")
	}
	return nil
}

// withDefaults fills zero chunk and cache sizes and copies Labels.
func (c BufferConfig) withDefaults() BufferConfig {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.CacheSizeMB == 0 {
		c.CacheSizeMB = DefaultCacheSizeMB
	}
	if c.Labels != nil {
		c.Labels = maps.Clone(c.Labels)
	}
	return c
}

// compatible reports whether a buffer built for c can serve other.
func (c BufferConfig) compatible(other BufferConfig) bool {
	return c.SampleRate == other.SampleRate &&
		c.Channels == other.Channels &&
		c.BufferSize == other.BufferSize
}

// poolKey identifies buffers that are interchangeable in a pool.
func (c BufferConfig) poolKey() string {
	return fmt.Sprintf("%dhz_%dch_%d", c.SampleRate, c.Channels, c.BufferSize)
}

// FrameBytes returns the size of one interleaved frame in bytes.
func (c BufferConfig) FrameBytes() int {
	return c.Channels * bytesPerSample
}

// exceedsMemoryLimit reports whether frames would overflow MaxMemoryMB.
func (c BufferConfig) exceedsMemoryLimit(frames int) bool {
	if c.MaxMemoryMB == 0 {
		return false
	}
	return float64(frames)*float64(c.FrameBytes()) > c.MaxMemoryMB*bytesPerMB
}

func configError(field string, value any, msg string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrConfiguration, msg)).
		Component(ComponentAudioCore).
		Category(errors.CategoryConfiguration).
		Context("field", field).
		Context("value", value).
		Build()
}
