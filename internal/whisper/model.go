package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/voxapi/internal/audio"
)

// Model is a loaded model handle. It holds no per-request state, so one
// handle serves concurrent requests.
type Model struct {
	Name   string
	Path   string
	engine Engine
}

func NewModel(name, path string, engine Engine) *Model {
	return &Model{Name: name, Path: path, engine: engine}
}

// Input is a waveform prepared for the engine. The engine derives its
// log-Mel features from the WAV file at Path.
type Input struct {
	Path    string
	Samples int
}

func (in *Input) Close() error {
	if in == nil || in.Path == "" {
		return nil
	}
	err := os.Remove(in.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DecodingOptions mirrors the engine's decoding knobs. The zero value means
// engine defaults; Language pins the decoding language.
type DecodingOptions struct {
	Language string
}

func (m *Model) Prepare(ctx context.Context, wf audio.Waveform) (*Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if wf.Len() == 0 {
		return nil, errors.New("cannot prepare empty waveform")
	}

	f, err := os.CreateTemp("", "voxapi-input-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create engine input: %w", err)
	}

	in := &Input{Path: f.Name(), Samples: wf.Len()}
	if err := audio.WriteWAV(f, wf); err != nil {
		_ = f.Close()
		_ = in.Close()
		return nil, fmt.Errorf("write engine input: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("close engine input: %w", err)
	}
	return in, nil
}

func (m *Model) DetectLanguage(ctx context.Context, in *Input) (map[string]float64, error) {
	if in == nil {
		return nil, errors.New("engine input is required")
	}
	probs, err := m.engine.DetectLanguage(ctx, LanguageRequest{AudioPath: in.Path, ModelPath: m.Path})
	if err != nil {
		return nil, fmt.Errorf("detect language with %s: %w", m.Name, err)
	}
	return probs, nil
}

func (m *Model) Decode(ctx context.Context, in *Input, opts DecodingOptions) (string, error) {
	if in == nil {
		return "", errors.New("engine input is required")
	}
	text, err := m.engine.Transcribe(ctx, TranscriptionRequest{
		AudioPath: in.Path,
		ModelPath: m.Path,
		Language:  opts.Language,
	})
	if err != nil {
		return "", fmt.Errorf("decode with %s: %w", m.Name, err)
	}
	return text, nil
}
