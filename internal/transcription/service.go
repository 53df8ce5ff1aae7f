package transcription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/telemetry"
	"github.com/fmueller/voxapi/internal/whisper"
	"go.uber.org/zap"
)

var ErrNoLanguage = errors.New("language detection returned no candidates")

type Result struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type ModelSource interface {
	Load(ctx context.Context, name string) (*whisper.Model, error)
}

type Service struct {
	models       ModelSource
	defaultModel string
	logger       *zap.Logger
	instruments  *telemetry.Instruments
}

func NewService(models ModelSource, defaultModel string, instruments *telemetry.Instruments, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = whisper.DefaultModel
	}
	return &Service{
		models:       models,
		defaultModel: defaultModel,
		logger:       logger,
		instruments:  instruments,
	}
}

func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// ModelName returns the model a request for name will use.
func (s *Service) ModelName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return s.defaultModel
}

// Transcribe fits the waveform to the model's 30 second window, detects the
// spoken language and decodes the text. Nothing is retried; the first failing
// step fails the call.
func (s *Service) Transcribe(ctx context.Context, wf audio.Waveform, modelName string) (Result, error) {
	modelName = s.ModelName(modelName)

	result, err := s.transcribe(ctx, wf, modelName)
	s.instruments.CountTranscription(ctx, modelName, outcomeOf(err))
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("transcription finished",
		zap.String("model", modelName),
		zap.String("text", result.Text),
		zap.String("lang", result.Lang),
	)
	return result, nil
}

func (s *Service) transcribe(ctx context.Context, wf audio.Waveform, modelName string) (Result, error) {
	if wf.SampleRate != audio.SampleRate {
		return Result{}, fmt.Errorf("waveform sample rate is %d Hz, want %d Hz", wf.SampleRate, audio.SampleRate)
	}
	window := audio.PadOrTrim(wf, audio.ChunkSamples)

	model, err := s.models.Load(ctx, modelName)
	if err != nil {
		return Result{}, err
	}

	in, err := model.Prepare(ctx, window)
	if err != nil {
		return Result{}, fmt.Errorf("prepare features: %w", err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			s.logger.Warn("failed to remove engine input", zap.String("path", in.Path), zap.Error(err))
		}
	}()

	probs, err := model.DetectLanguage(ctx, in)
	if err != nil {
		return Result{}, err
	}
	lang, err := MostLikelyLanguage(probs)
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("detected language", zap.String("lang", lang), zap.Float64("p", probs[lang]))

	text, err := model.Decode(ctx, in, whisper.DecodingOptions{})
	if err != nil {
		return Result{}, err
	}

	return Result{Text: text, Lang: lang}, nil
}

// MostLikelyLanguage picks the code with the highest probability. Equal
// probabilities resolve to the lexically smallest code.
func MostLikelyLanguage(probs map[string]float64) (string, error) {
	if len(probs) == 0 {
		return "", ErrNoLanguage
	}

	codes := make([]string, 0, len(probs))
	for code := range probs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	best := codes[0]
	for _, code := range codes[1:] {
		if probs[code] > probs[best] {
			best = code
		}
	}
	return best, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return telemetry.OutcomeOK
	}
	var loadErr *whisper.ModelLoadError
	if errors.As(err, &loadErr) {
		return telemetry.OutcomeModelError
	}
	return telemetry.OutcomeEngineError
}
