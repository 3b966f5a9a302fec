package device

import (
	"github.com/tphakala/rtaudio/internal/audiocore"
)

const bytesPerSample = 4

// frameAssembler cuts interleaved float32 callbacks into fixed size blocks
type frameAssembler struct {
	channels int
	size     int
	pending  []byte
}

func newFrameAssembler(channels, size int) *frameAssembler {
	return &frameAssembler{
		channels: channels,
		size:     size,
		pending:  make([]byte, 0, 2*channels*size*bytesPerSample),
	}
}

// push appends input and calls emit for every complete block
func (a *frameAssembler) push(input []byte, emit func(audiocore.Block)) {
	a.pending = append(a.pending, input...)
	blockBytes := a.channels * a.size * bytesPerSample
	consumed := 0
	for len(a.pending)-consumed >= blockBytes {
		emit(audiocore.BlockFromBytes(a.pending[consumed:consumed+blockBytes], a.channels))
		consumed += blockBytes
	}
	if consumed > 0 {
		a.pending = append(a.pending[:0], a.pending[consumed:]...)
	}
}

// outputFeeder fills playback buffers from processed blocks, carrying
// partial blocks across callbacks
type outputFeeder struct {
	channels int
	leftover []byte
}

func newOutputFeeder(channels int) *outputFeeder {
	return &outputFeeder{channels: channels}
}

// fill writes dst from leftover audio and pull, zeroing what cannot be
// filled. It returns the number of bytes of real audio written.
func (f *outputFeeder) fill(dst []byte, pull func() *audiocore.AudioData) int {
	written := copy(dst, f.leftover)
	f.leftover = f.leftover[written:]

	for written < len(dst) {
		data := pull()
		if data == nil {
			break
		}
		if data.Samples.Channels() != f.channels {
			continue
		}
		encoded := data.Samples.AppendBytes(nil)
		n := copy(dst[written:], encoded)
		written += n
		f.leftover = append(f.leftover[:0], encoded[n:]...)
	}

	clear(dst[written:])
	return written
}
