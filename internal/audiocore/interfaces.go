package audiocore

import (
	"context"
	"time"
)

// AudioFormat represents the format of audio data
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 48000)
	Channels   int    // Number of channels (1 for mono, 2 for stereo)
	BitDepth   int    // Bits per sample of the source (e.g., 16, 24, 32)
	Encoding   string // Encoding of the source data (e.g., "pcm_f32le")
}

// EncodingF32 is the in-memory sample encoding of every Block.
const EncodingF32 = "pcm_f32le"

// DefaultGroup is the meter group used when AudioData.Group is empty.
const DefaultGroup = "master"

// AudioData is one block of audio moving through the processor.
type AudioData struct {
	Samples   Block       // channel-major samples
	Format    AudioFormat // format the samples are in
	Timestamp time.Time   // capture time of the first frame
	Group     string      // channel group for metering, DefaultGroup when empty
	Sequence  uint64      // producer assigned sequence number
}

// Frames returns the frame count of the block.
func (d *AudioData) Frames() int {
	return d.Samples.Frames()
}

// Duration returns the playback length of the block.
func (d *AudioData) Duration() time.Duration {
	if d.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(d.Frames()) * time.Second / time.Duration(d.Format.SampleRate)
}

// MeterGroup returns Group or DefaultGroup.
func (d *AudioData) MeterGroup() string {
	if d.Group == "" {
		return DefaultGroup
	}
	return d.Group
}

// AudioProcessor processes audio data
type AudioProcessor interface {
	// ID returns a unique identifier for this processor
	ID() string

	// Process transforms audio data
	Process(ctx context.Context, input *AudioData) (*AudioData, error)

	// LatencySamples returns the delay the processor adds, in samples
	LatencySamples() int
}

// ProcessorChain represents a sequence of audio processors. It is the plugin
// chain capability the real-time processor invokes once per block.
type ProcessorChain interface {
	// AddProcessor adds a processor to the chain
	AddProcessor(processor AudioProcessor) error

	// RemoveProcessor removes a processor from the chain
	RemoveProcessor(id string) error

	// Process runs audio through the entire chain
	Process(ctx context.Context, input *AudioData) (*AudioData, error)

	// GetProcessors returns all processors in order
	GetProcessors() []AudioProcessor

	// LatencySamples returns the summed latency of all processors
	LatencySamples() int
}

// BufferState is the lifecycle state of a buffer.
type BufferState int

const (
	StateUnallocated BufferState = iota
	StateReady
	StateError
	StateClosed
)

// String returns the state name
func (s BufferState) String() string {
	switch s {
	case StateUnallocated:
		return "unallocated"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BufferMetrics is a point in time copy of a buffer's counters.
type BufferMetrics struct {
	ReadCount     int64         `json:"read_count"`
	WriteCount    int64         `json:"write_count"`
	BytesRead     int64         `json:"bytes_read"`
	BytesWritten  int64         `json:"bytes_written"`
	AvgReadTime   time.Duration `json:"avg_read_time_ns"`
	MaxReadTime   time.Duration `json:"max_read_time_ns"`
	AvgWriteTime  time.Duration `json:"avg_write_time_ns"`
	MaxWriteTime  time.Duration `json:"max_write_time_ns"`
	ErrorCount    int64         `json:"error_count"`
	MemoryUsageMB float64       `json:"memory_usage_mb"`
	CacheHitRate  float64       `json:"cache_hit_rate"`
}

// Buffer is the capability set shared by all buffer variants.
//
// Operations on an unallocated or closed buffer are no-ops: Write returns
// (0, nil), Read returns an empty block and Seek returns false.
type Buffer interface {
	ID() string
	Type() BufferType
	Config() BufferConfig
	State() BufferState

	// Allocate reserves frames of storage. For a StreamingBuffer frames is
	// the size estimate of the backing file.
	Allocate(frames int) bool

	// Write stores samples at the cursor and returns the frames accepted.
	Write(samples Block) (int, error)

	// Read returns up to frames frames from the cursor without blocking.
	Read(frames int) Block

	Seek(position int) bool
	Tell() int
	Size() int
	Metrics() BufferMetrics

	// Reset rewinds and clears the buffer, keeping its allocation.
	Reset()

	Close() error
}
