// Package audiocore owns the sample buffers of the real-time data path.
//
// # Buffers
//
// Every buffer implements the Buffer interface and is one of a closed set of
// variants selected by BufferType:
//
//   - MemoryBuffer: fixed capacity, in memory, with a read/write cursor
//   - StreamingBuffer: backed by a temporary file with an LRU chunk cache
//   - RingBufferWrapper: bounded FIFO that rejects writes beyond free space
//
// Buffers exchange samples as a Block, a channel-major [][]float32. On disk
// and inside the ring, samples are stored as interleaved little-endian
// float32.
//
// # Concurrency
//
// Each buffer guards its state with its own mutex. BufferPool and
// AudioBufferManager guard their registries independently, so creating,
// pooling or removing buffers never blocks reads and writes on unrelated
// buffers. There is no package level state: managers, pools and metrics
// collectors are constructed and passed explicitly.
//
// # Errors
//
// Errors use the enhanced error builder from internal/errors. Compare them
// with errors.Is against ErrConfiguration, ErrCapacity, ErrShapeMismatch,
// ErrProcessingFailure, ErrBufferNotFound and ErrBufferClosed. Backpressure
// (full ring, full queue) is never an error; it is reported through return
// values.
package audiocore
