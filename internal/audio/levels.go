package audio

import "math"

const DefaultSilenceThresholdDBFS = -65.0

// Levels summarizes the loudness of a waveform in dBFS.
type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int
}

func MeasureLevels(w Waveform) Levels {
	if len(w.Samples) == 0 {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	var peak, sumSquares float64
	for _, s := range w.Samples {
		v := float64(s)
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
		sumSquares += v * v
	}

	return Levels{
		RMSdBFS:  amplitudeToDBFS(math.Sqrt(sumSquares / float64(len(w.Samples)))),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  len(w.Samples),
	}
}

// Silent reports whether the levels fall under thresholdDBFS. The peak is
// allowed 6 dB of headroom above the threshold so isolated clicks do not
// count as signal.
func (l Levels) Silent(thresholdDBFS float64) bool {
	if l.Samples == 0 {
		return true
	}
	if math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1) {
		return true
	}
	return l.RMSdBFS <= thresholdDBFS && l.PeakdBFS <= thresholdDBFS+6
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
