package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromPCM16ScalesSamples(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 8)
	for i, v := range []int16{0, 16384, -16384, -32768} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	w, err := FromPCM16(pcm, SampleRate)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0.5, -0.5, -1}, w.Samples)
	require.Equal(t, SampleRate, w.SampleRate)
}

func TestFromPCM16RejectsOddLength(t *testing.T) {
	t.Parallel()

	_, err := FromPCM16([]byte{1, 2, 3}, SampleRate)
	require.ErrorIs(t, err, ErrOddPCMLength)
}

func TestPadOrTrim(t *testing.T) {
	t.Parallel()

	short := Waveform{Samples: []float32{0.1, 0.2}, SampleRate: SampleRate}
	padded := PadOrTrim(short, 4)
	require.Equal(t, []float32{0.1, 0.2, 0, 0}, padded.Samples)
	require.Len(t, short.Samples, 2)

	long := Waveform{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: SampleRate}
	trimmed := PadOrTrim(long, 2)
	require.Equal(t, []float32{0.1, 0.2}, trimmed.Samples)

	trimmed.Samples[0] = 9
	require.Equal(t, float32(0.1), long.Samples[0])
}

func TestPadOrTrimToModelWindow(t *testing.T) {
	t.Parallel()

	w := Waveform{Samples: make([]float32, 5*SampleRate), SampleRate: SampleRate}
	window := PadOrTrim(w, ChunkSamples)
	require.Equal(t, ChunkSamples, window.Len())
	require.Equal(t, 30*time.Second, window.Duration())
}

func TestWaveformDuration(t *testing.T) {
	t.Parallel()

	w := Waveform{Samples: make([]float32, 24000), SampleRate: SampleRate}
	require.Equal(t, 1500*time.Millisecond, w.Duration())
	require.Zero(t, Waveform{Samples: make([]float32, 10)}.Duration())
}
