package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// SampleRate is the rate every waveform handed to a model uses.
	SampleRate = 16000
	// ChunkSeconds is the length of the model's fixed analysis window.
	ChunkSeconds = 30
	// ChunkSamples is ChunkSeconds expressed in samples at SampleRate.
	ChunkSamples = ChunkSeconds * SampleRate
)

var ErrOddPCMLength = errors.New("pcm16 payload has an odd number of bytes")

// Waveform is mono audio normalized to roughly [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w Waveform) Len() int {
	return len(w.Samples)
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// FromPCM16 interprets pcm as signed 16-bit little-endian samples and scales
// each one by 1/32768.
func FromPCM16(pcm []byte, sampleRate int) (Waveform, error) {
	if len(pcm)%2 != 0 {
		return Waveform{}, fmt.Errorf("%w (%d bytes)", ErrOddPCMLength, len(pcm))
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768.0
	}

	return Waveform{Samples: samples, SampleRate: sampleRate}, nil
}

// PadOrTrim returns a copy of w that is exactly n samples long, truncating
// longer input and appending silence to shorter input.
func PadOrTrim(w Waveform, n int) Waveform {
	if n < 0 {
		n = 0
	}

	out := make([]float32, n)
	copy(out, w.Samples)
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}
