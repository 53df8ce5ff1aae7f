package api

import (
	"context"
	"net/http"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/telemetry"
	"github.com/fmueller/voxapi/internal/transcription"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Transcriber interface {
	Transcribe(ctx context.Context, wf audio.Waveform, modelName string) (transcription.Result, error)
	ModelName(name string) string
	DefaultModel() string
}

type Deps struct {
	Transcriber Transcriber
	Decoder     audio.Decoder
	Instruments *telemetry.Instruments
	// Metrics is mounted at /metrics when non-nil.
	Metrics         http.Handler
	MaxUploadMemory int64
	SampleRate      int
	Logger          *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MaxUploadMemory <= 0 {
		d.MaxUploadMemory = 32 << 20
	}
	if d.SampleRate <= 0 {
		d.SampleRate = audio.SampleRate
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog(d.Logger))
	r.Use(chimiddleware.Recoverer)

	h := &handlers{deps: d}
	r.Get("/healthz", h.healthz)
	r.Post("/transcription", h.transcription)

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	return r
}
