// Package sources loads audio into audiocore buffers and generates test
// signals.
package sources

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
)

// AudioInfo describes a decoded file
type AudioInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
}

// Reader decodes a .wav or .flac file incrementally. Only the samples of
// the current read are held in memory.
type Reader struct {
	file    *os.File
	info    AudioInfo
	divisor float32
	pending []float32 // interleaved samples not yet returned
	eof     bool

	wavDec  *wav.Decoder
	pcm     *audio.IntBuffer
	flacDec *flac.Decoder
	scratch audiocore.Block
}

// Open opens path for incremental decoding
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio_file").
			Context("path", path).
			Build()
	}

	r := &Reader{file: file}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		err = r.openWAV()
	case ".flac":
		err = r.openFLAC()
	default:
		err = errors.Newf("unsupported audio file type: %s", ext).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) openWAV() error {
	decoder := wav.NewDecoder(r.file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return decodeError(errors.NewStd("input is not a valid WAV audio file"), "wav")
	}

	bitDepth := int(decoder.BitDepth)
	divisor, err := audioDivisor(bitDepth)
	if err != nil {
		return err
	}

	if err := decoder.FwdToPCM(); err != nil {
		return decodeError(err, "wav")
	}

	channels := int(decoder.NumChans)
	r.wavDec = decoder
	r.divisor = divisor
	r.info = AudioInfo{
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
		Frames:     int(decoder.PCMLen()) / (bitDepth / 8 * channels),
	}
	r.pcm = &audio.IntBuffer{
		Data:   make([]int, audiocore.DefaultChunkSize*channels),
		Format: &audio.Format{SampleRate: r.info.SampleRate, NumChannels: channels},
	}
	return nil
}

func (r *Reader) openFLAC() error {
	decoder, err := flac.NewDecoder(r.file)
	if err != nil {
		return decodeError(err, "flac")
	}
	divisor, err := audioDivisor(decoder.BitsPerSample)
	if err != nil {
		return err
	}

	r.flacDec = decoder
	r.divisor = divisor
	r.info = AudioInfo{
		SampleRate: decoder.SampleRate,
		Channels:   decoder.NChannels,
		BitDepth:   decoder.BitsPerSample,
		Frames:     int(decoder.TotalSamples),
	}
	r.scratch = audiocore.NewBlock(decoder.NChannels, 0)
	return nil
}

// Info returns the file format. Frames comes from the header.
func (r *Reader) Info() AudioInfo { return r.info }

// fill decodes the next piece of the file into pending
func (r *Reader) fill() error {
	if r.wavDec != nil {
		n, err := r.wavDec.PCMBuffer(r.pcm)
		if err != nil {
			return decodeError(err, "wav")
		}
		if n == 0 {
			r.eof = true
			return nil
		}
		for _, sample := range r.pcm.Data[:n] {
			r.pending = append(r.pending, float32(sample)/r.divisor)
		}
		return nil
	}

	frame, err := r.flacDec.Next()
	if err == io.EOF {
		r.eof = true
		return nil
	} else if err != nil {
		return decodeError(err, "flac")
	}
	for ch := range r.scratch {
		r.scratch[ch] = r.scratch[ch][:0]
	}
	r.scratch = appendPCM(r.scratch, frame, r.info.BitDepth, r.divisor)
	for i := range r.scratch.Frames() {
		for _, row := range r.scratch {
			r.pending = append(r.pending, row[i])
		}
	}
	return nil
}

// Read returns up to frames frames. It returns io.EOF once the file is
// exhausted.
func (r *Reader) Read(frames int) (audiocore.Block, error) {
	channels := r.info.Channels
	for len(r.pending) < frames*channels && !r.eof {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}

	n := min(frames, len(r.pending)/channels)
	if n == 0 {
		return nil, io.EOF
	}
	block := audiocore.NewBlock(channels, n)
	for i := range n {
		for ch := range channels {
			block[ch][i] = r.pending[i*channels+ch]
		}
	}
	r.pending = r.pending[:copy(r.pending, r.pending[n*channels:])]
	return block, nil
}

// Close closes the file
func (r *Reader) Close() error {
	return r.file.Close()
}

// LoadFile decodes a .wav or .flac file into a float block in [-1, 1]
func LoadFile(path string) (audiocore.Block, AudioInfo, error) {
	r, err := Open(path)
	if err != nil {
		return nil, AudioInfo{}, err
	}
	defer func() { _ = r.Close() }()

	info := r.Info()
	block := audiocore.NewBlock(info.Channels, 0)
	for {
		chunk, err := r.Read(audiocore.DefaultChunkSize)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, AudioInfo{}, err
		}
		for ch := range block {
			block[ch] = append(block[ch], chunk[ch]...)
		}
	}
	info.Frames = block.Frames()
	return block, info, nil
}

// appendPCM appends interleaved little-endian signed PCM to block
func appendPCM(block audiocore.Block, data []byte, bitDepth int, divisor float32) audiocore.Block {
	width := bitDepth / 8
	frameBytes := width * len(block)
	for i := 0; i+frameBytes <= len(data); i += frameBytes {
		for ch := range block {
			pos := i + ch*width
			var sample int32
			switch bitDepth {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(data[pos:])))
			case 24:
				u := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16
				sample = int32(u<<8) >> 8
			case 32:
				sample = int32(binary.LittleEndian.Uint32(data[pos:]))
			}
			block[ch] = append(block[ch], float32(sample)/divisor)
		}
	}
	return block
}

// audioDivisor returns the full scale value for a signed PCM bit depth
func audioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("bit_depth", bitDepth).
			Build()
	}
}

func decodeError(err error, format string) error {
	return errors.New(err).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryAudio).
		Context("operation", "decode_audio_file").
		Context("format", format).
		Build()
}

// LoadInto decodes path chunk by chunk and writes it into buf from its
// current cursor, so the file is never held whole in memory. The file must
// match the buffer's sample rate. It returns the frames written, which is
// less than the file length when buf is full.
func LoadInto(path string, buf audiocore.Buffer) (int, AudioInfo, error) {
	r, err := Open(path)
	if err != nil {
		return 0, AudioInfo{}, err
	}
	defer func() { _ = r.Close() }()

	info := r.Info()
	cfg := buf.Config()
	if info.SampleRate != cfg.SampleRate {
		return 0, info, errors.New(audiocore.ErrConfiguration).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("file_sample_rate", info.SampleRate).
			Context("buffer_sample_rate", cfg.SampleRate).
			Build()
	}

	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = audiocore.DefaultChunkSize
	}

	written := 0
	for {
		block, err := r.Read(chunk)
		if err == io.EOF {
			break
		} else if err != nil {
			return written, info, err
		}
		n, err := buf.Write(block)
		written += n
		if err != nil {
			return written, info, err
		}
		if n < block.Frames() {
			break
		}
	}
	return written, info, nil
}

// SineGenerator produces a continuous sine wave across calls to Next
type SineGenerator struct {
	frequency  float64
	amplitude  float64
	sampleRate int
	channels   int
	phase      float64
}

// NewSineGenerator creates a generator of frequency Hz at amplitude
func NewSineGenerator(frequency, amplitude float64, sampleRate, channels int) *SineGenerator {
	return &SineGenerator{
		frequency:  frequency,
		amplitude:  amplitude,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Next returns the next frames frames, identical on every channel
func (g *SineGenerator) Next(frames int) audiocore.Block {
	block := audiocore.NewBlock(g.channels, frames)
	if g.sampleRate <= 0 || g.channels <= 0 {
		return block
	}
	step := 2 * math.Pi * g.frequency / float64(g.sampleRate)
	for i := range frames {
		v := float32(g.amplitude * math.Sin(g.phase))
		for ch := range block {
			block[ch][i] = v
		}
		g.phase = math.Mod(g.phase+step, 2*math.Pi)
	}
	return block
}

// Sine returns frames frames of a sine wave starting at phase zero
func Sine(frequency, amplitude float64, sampleRate, channels, frames int) audiocore.Block {
	return NewSineGenerator(frequency, amplitude, sampleRate, channels).Next(frames)
}
