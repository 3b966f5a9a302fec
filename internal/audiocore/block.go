package audiocore

import (
	"encoding/binary"
	"math"
)

// Block is a channel-major block of samples with shape (channels, frames).
type Block [][]float32

// NewBlock allocates a zeroed block.
func NewBlock(channels, frames int) Block {
	b := make(Block, channels)
	for ch := range b {
		b[ch] = make([]float32, frames)
	}
	return b
}

// Channels returns the number of channels.
func (b Block) Channels() int {
	return len(b)
}

// Frames returns the number of frames, or 0 for an empty block.
func (b Block) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Valid reports whether every channel holds the same number of frames.
func (b Block) Valid() bool {
	for _, row := range b {
		if len(row) != len(b[0]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	out := make(Block, len(b))
	for ch, row := range b {
		out[ch] = append([]float32(nil), row...)
	}
	return out
}

// Slice returns frames [from, to) sharing storage with b.
func (b Block) Slice(from, to int) Block {
	out := make(Block, len(b))
	for ch, row := range b {
		out[ch] = row[from:to]
	}
	return out
}

// AppendBytes appends the block as interleaved little-endian float32.
func (b Block) AppendBytes(dst []byte) []byte {
	frames := b.Frames()
	for i := range frames {
		for _, row := range b {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(row[i]))
		}
	}
	return dst
}

// BlockFromBytes decodes interleaved little-endian float32 samples. A
// trailing partial frame is ignored.
func BlockFromBytes(data []byte, channels int) Block {
	if channels <= 0 {
		return nil
	}
	frames := len(data) / (channels * bytesPerSample)
	b := NewBlock(channels, frames)
	decodeInto(b, 0, data[:frames*channels*bytesPerSample])
	return b
}

// decodeInto writes interleaved bytes into b starting at frame offset.
func decodeInto(b Block, offset int, data []byte) {
	channels := len(b)
	frameBytes := channels * bytesPerSample
	for i := 0; i+frameBytes <= len(data); i += frameBytes {
		frame := offset + i/frameBytes
		for ch := range channels {
			pos := i + ch*bytesPerSample
			b[ch][frame] = math.Float32frombits(binary.LittleEndian.Uint32(data[pos:]))
		}
	}
}

// encodeInto writes frames [from, to) of b into dst as interleaved bytes.
func encodeInto(dst []byte, b Block, from, to int) {
	pos := 0
	for i := from; i < to; i++ {
		for _, row := range b {
			binary.LittleEndian.PutUint32(dst[pos:], math.Float32bits(row[i]))
			pos += bytesPerSample
		}
	}
}
