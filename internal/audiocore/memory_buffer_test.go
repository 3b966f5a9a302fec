package audiocore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryBuffer(t *testing.T, frames int) *MemoryBuffer {
	t.Helper()
	buf, err := NewMemoryBuffer("mem", testConfig(t, TypeMemory))
	require.NoError(t, err)
	require.True(t, buf.Allocate(frames))
	return buf
}

func TestMemoryBufferRoundTrip(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 1024)
	in := rampBlock(2, 300, 0)

	n, err := buf.Write(in)
	require.NoError(t, err)
	assert.Equal(t, 300, n)
	assert.Equal(t, 300, buf.Tell())

	require.True(t, buf.Seek(0))
	out := buf.Read(300)
	assert.Equal(t, in, out)

	m := buf.Metrics()
	assert.Equal(t, int64(1), m.WriteCount)
	assert.Equal(t, int64(1), m.ReadCount)
	assert.Equal(t, int64(300*2*4), m.BytesWritten)
	assert.Equal(t, int64(300*2*4), m.BytesRead)
}

func TestMemoryBufferPartialWrite(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 100)
	require.True(t, buf.Seek(60))

	n, err := buf.Write(rampBlock(2, 80, 0))
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, 100, buf.Tell())

	n, err = buf.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryBufferReadBoundedBySize(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 100)
	require.True(t, buf.Seek(90))

	assert.Equal(t, 10, buf.Read(50).Frames())
	assert.Equal(t, 0, buf.Read(50).Frames())
}

func TestMemoryBufferSeekRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 100)
	require.True(t, buf.Seek(25))

	assert.False(t, buf.Seek(-1))
	assert.False(t, buf.Seek(101))
	assert.Equal(t, 25, buf.Tell())
	assert.True(t, buf.Seek(100))
}

func TestMemoryBufferAllocateOverLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, TypeMemory)
	cfg.MaxMemoryMB = 1
	buf, err := NewMemoryBuffer("limited", cfg)
	require.NoError(t, err)

	// 1 MB holds 131072 stereo float32 frames
	assert.True(t, buf.Allocate(131072))
	assert.False(t, buf.Allocate(131073))
	assert.Equal(t, StateError, buf.State())
	assert.Equal(t, int64(1), buf.Metrics().ErrorCount)
}

func TestMemoryBufferShapeMismatch(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 100)

	n, err := buf.Write(rampBlock(1, 10, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Zero(t, n)
	assert.Zero(t, buf.Tell())
	assert.Equal(t, StateError, buf.State())

	_, err = buf.Write(Block{make([]float32, 4), make([]float32, 3)})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// still usable after the rejected write
	n, err = buf.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestMemoryBufferUnallocatedAndClosed(t *testing.T) {
	t.Parallel()
	buf, err := NewMemoryBuffer("idle", testConfig(t, TypeMemory))
	require.NoError(t, err)

	n, err := buf.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Read(10).Frames())
	assert.False(t, buf.Seek(0))
	assert.Equal(t, StateUnallocated, buf.State())

	require.True(t, buf.Allocate(10))
	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())

	n, err = buf.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Read(10).Frames())
	assert.False(t, buf.Allocate(10))
	assert.Equal(t, StateClosed, buf.State())
}

func TestMemoryBufferReset(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 20)
	_, err := buf.Write(rampBlock(2, 20, 1))
	require.NoError(t, err)

	buf.Reset()
	assert.Zero(t, buf.Tell())
	assert.Equal(t, 20, buf.Size())
	assert.Equal(t, NewBlock(2, 20), buf.Read(20))
}

func TestMemoryBufferConcurrentAccess(t *testing.T) {
	t.Parallel()
	const (
		workers = 8
		cycles  = 100
		frames  = 16
	)
	buf := newMemoryBuffer(t, workers*cycles*frames)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			for i := range cycles {
				n, err := buf.Write(rampBlock(2, frames, w*cycles+i))
				assert.NoError(t, err)
				assert.LessOrEqual(t, n, frames)

				out := buf.Read(frames)
				assert.True(t, out.Valid())
				assert.Equal(t, 2, out.Channels())
				assert.LessOrEqual(t, out.Frames(), frames)

				pos := buf.Tell()
				assert.GreaterOrEqual(t, pos, 0)
				assert.LessOrEqual(t, pos, buf.Size())
			}
		})
	}
	wg.Wait()

	m := buf.Metrics()
	assert.Equal(t, int64(workers*cycles), m.WriteCount)
	assert.Equal(t, int64(workers*cycles), m.ReadCount)
	assert.Zero(t, m.ErrorCount)
}

func TestMemoryBufferTimingExcludesLockWait(t *testing.T) {
	t.Parallel()
	buf := newMemoryBuffer(t, 1024)
	const held = 50 * time.Millisecond

	buf.mu.Lock()
	var wg sync.WaitGroup
	wg.Go(func() {
		_, _ = buf.Write(rampBlock(2, 16, 0))
	})
	time.Sleep(held)
	buf.mu.Unlock()
	wg.Wait()

	m := buf.Metrics()
	require.Equal(t, int64(1), m.WriteCount)
	assert.Less(t, m.MaxWriteTime, held)
}
