package export

import (
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/errors"
)

// pcmFormat is the WAVE format tag for integer PCM
const pcmFormat = 1

// WriteWAV writes samples as integer PCM at bitDepth to path. The file is
// written next to path and renamed into place when complete.
func WriteWAV(path string, samples audiocore.Block, sampleRate, bitDepth int) error {
	_, err := writeWAV(path, &blockSource{samples: samples}, samples.Channels(), sampleRate, bitDepth)
	return err
}

func writeWAV(path string, src Source, channels, sampleRate, bitDepth int) (int, error) {
	tempPath := path + ".tmp"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("operation", "create_wav_file").
			Context("path", tempPath).
			Build()
	}

	frames, err := encodeWAV(outFile, src, channels, sampleRate, bitDepth)
	if err != nil {
		_ = outFile.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}
	if err := outFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return 0, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("operation", "close_wav_file").
			Build()
	}
	return frames, commit(tempPath, path)
}

// EncodeWAV encodes samples as a WAV stream into w
func EncodeWAV(w io.WriteSeeker, samples audiocore.Block, sampleRate, bitDepth int) error {
	_, err := encodeWAV(w, &blockSource{samples: samples}, samples.Channels(), sampleRate, bitDepth)
	return err
}

// encodeWAV writes src to w one chunk at a time and returns the frame count
func encodeWAV(w io.WriteSeeker, src Source, channels, sampleRate, bitDepth int) (int, error) {
	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}

	frames := 0
	for {
		chunk := src.Read(chunkFrames)
		n := chunk.Frames()
		if n > 0 && chunk.Channels() != channels {
			return frames, shapeError(chunk.Channels(), channels)
		}
		// the first write emits the header even for an empty stream
		if n == 0 && frames > 0 {
			break
		}

		buf.Data = appendInts(buf.Data[:0], chunk, bitDepth)
		if err := enc.Write(buf); err != nil {
			return frames, errors.New(err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryExport).
				Context("operation", "encode_wav").
				Context("bit_depth", bitDepth).
				Build()
		}
		frames += n
		if n == 0 {
			break
		}
	}

	// Close finalizes the RIFF header sizes
	if err := enc.Close(); err != nil {
		return frames, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryExport).
			Context("operation", "finalize_wav").
			Build()
	}
	return frames, nil
}

// appendInts scales float samples in [-1, 1] to interleaved signed integers
// of bitDepth bits, clamping out of range values.
func appendInts(out []int, samples audiocore.Block, bitDepth int) []int {
	scale := float64(int64(1)<<(bitDepth-1) - 1)
	frames := samples.Frames()
	for i := range frames {
		for _, row := range samples {
			v := math.Max(-1, math.Min(1, float64(row[i])))
			out = append(out, int(math.Round(v*scale)))
		}
	}
	return out
}
