package audiocore

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, capacity int) *RingBufferWrapper {
	t.Helper()
	ring, err := NewRingBufferWrapper("ring", testConfig(t, TypeRing))
	require.NoError(t, err)
	require.True(t, ring.Allocate(capacity))
	return ring
}

func TestRingBufferRejectsExcess(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 100)
	in := rampBlock(2, 150, 0)

	n, err := ring.Write(in)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Zero(t, ring.Free())

	n, err = ring.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, in.Slice(0, 100), ring.Read(100))
}

func TestRingBufferFIFOOrder(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 64)

	_, err := ring.Write(rampBlock(2, 40, 0))
	require.NoError(t, err)
	assert.Equal(t, rampBlock(2, 30, 0), ring.Read(30))

	_, err = ring.Write(rampBlock(2, 40, 40))
	require.NoError(t, err)
	assert.Equal(t, 50, ring.Available())
	assert.Equal(t, 50, ring.Tell())

	out := ring.Read(100)
	assert.Equal(t, 50, out.Frames())
	assert.Equal(t, rampBlock(2, 10, 30), out.Slice(0, 10))
	assert.Equal(t, rampBlock(2, 40, 40), out.Slice(10, 50))
}

func TestRingBufferReadEmpty(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 16)

	out := ring.Read(8)
	assert.Equal(t, 0, out.Frames())
	assert.False(t, ring.Seek(0))
	assert.Equal(t, 16, ring.Size())
}

func TestRingBufferMetrics(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 16)
	_, err := ring.Write(rampBlock(2, 10, 0))
	require.NoError(t, err)
	ring.Read(4)

	m := ring.Metrics()
	assert.Equal(t, int64(1), m.WriteCount)
	assert.Equal(t, int64(1), m.ReadCount)
	assert.Equal(t, int64(10*8), m.BytesWritten)
	assert.Equal(t, int64(4*8), m.BytesRead)
}

func TestRingBufferShapeMismatch(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 16)

	_, err := ring.Write(rampBlock(1, 4, 0))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Zero(t, ring.Available())
}

// failingRing accepts nothing and reports an error on write.
type failingRing struct{ size int }

func (f *failingRing) Write(p []byte) (int, error) { return 0, stderrors.New("device gone") }
func (f *failingRing) Read(p []byte) (int, error)  { return 0, nil }
func (f *failingRing) Length() int                 { return 0 }
func (f *failingRing) Capacity() int               { return f.size }
func (f *failingRing) Free() int                   { return f.size }
func (f *failingRing) Reset()                      {}

func TestRingBufferWriteError(t *testing.T) {
	t.Parallel()
	ring, err := NewRingBufferWrapper("faulty", testConfig(t, TypeRing))
	require.NoError(t, err)
	ring.newRing = func(size int) ringStore { return &failingRing{size: size} }
	require.True(t, ring.Allocate(16))

	n, err := ring.Write(rampBlock(2, 8, 0))
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), ring.Metrics().ErrorCount)
}

func TestRingBufferClosed(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 16)
	require.NoError(t, ring.Close())

	n, err := ring.Write(rampBlock(2, 4, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, ring.Read(4).Frames())
	assert.Zero(t, ring.Available())
}

func TestRingBufferTimingExcludesLockWait(t *testing.T) {
	t.Parallel()
	ring := newRing(t, 100)
	_, err := ring.Write(rampBlock(2, 50, 0))
	require.NoError(t, err)
	const held = 50 * time.Millisecond

	ring.mu.Lock()
	var wg sync.WaitGroup
	wg.Go(func() {
		ring.Read(50)
	})
	time.Sleep(held)
	ring.mu.Unlock()
	wg.Wait()

	m := ring.Metrics()
	require.Equal(t, int64(1), m.ReadCount)
	assert.Less(t, m.MaxReadTime, held)
}
