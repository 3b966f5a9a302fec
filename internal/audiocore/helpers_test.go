package audiocore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig returns a stereo 48 kHz config with 512 frame buffers.
func testConfig(t *testing.T, bufferType BufferType) BufferConfig {
	t.Helper()
	cfg, err := NewBufferConfig(bufferType, 48000, 2, 512, 0)
	require.NoError(t, err)
	return cfg
}

// rampBlock returns a block whose samples encode channel and frame index.
func rampBlock(channels, frames, offset int) Block {
	b := NewBlock(channels, frames)
	for ch := range channels {
		for i := range frames {
			b[ch][i] = float32(ch)*0.5 + float32(offset+i)*0.0001
		}
	}
	return b
}
