package transcription

import (
	"os"

	"github.com/fmueller/voxapi/internal/audio"
)

func readInput(path string) (audio.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Waveform{}, err
	}
	defer f.Close()
	return audio.ReadWAV(f)
}
