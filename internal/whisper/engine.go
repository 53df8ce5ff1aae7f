package whisper

import "context"

type LanguageRequest struct {
	AudioPath string
	ModelPath string
}

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	// Language is a language code, or empty/"auto" to let the model decide.
	Language string
}

// Engine runs inference for a model file. Implementations must be safe for
// concurrent use.
type Engine interface {
	// DetectLanguage returns the probability of each candidate language the
	// engine reports for the audio.
	DetectLanguage(ctx context.Context, req LanguageRequest) (map[string]float64, error)
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}
