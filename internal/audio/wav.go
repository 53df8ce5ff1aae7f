package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// WriteWAV encodes w as a 16-bit PCM mono WAV stream. Samples outside
// [-1, 1] are clamped.
func WriteWAV(out io.WriteSeeker, w Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		v := math.Round(float64(s) * 32768.0)
		data[i] = int(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(out, w.SampleRate, 16, 1, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV stream, downmixing to mono by averaging channels.
// The sample rate is left as found in the file.
func ReadWAV(in io.ReadSeeker) (Waveform, error) {
	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || dec.BitDepth == 0 {
		return Waveform{}, errors.New("decode wav: missing format")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	scale := float64(int64(1) << (dec.BitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = float32(sum / float64(channels) / scale)
	}

	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
