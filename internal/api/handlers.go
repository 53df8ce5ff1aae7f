package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/telemetry"
	"github.com/fmueller/voxapi/internal/whisper"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type handlers struct {
	deps Deps
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) transcription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.deps.Logger.With(zap.String("request_id", chimiddleware.GetReqID(ctx)))

	data, modelName, err := h.readUpload(r)
	if err != nil {
		h.deps.Instruments.CountTranscription(ctx, h.metricModel(r.FormValue("model")), telemetry.OutcomeInvalidInput)
		writeError(w, err)
		return
	}
	logger.Info("using model", zap.String("model", modelName))

	started := time.Now()
	wf, err := h.deps.Decoder.Decode(ctx, data, h.deps.SampleRate)
	h.deps.Instruments.RecordDecode(ctx, time.Since(started))
	if err != nil {
		h.deps.Instruments.CountTranscription(ctx, modelName, telemetry.OutcomeDecodeError)
		logger.Warn("decode failed", zap.Error(err))
		writeError(w, err)
		return
	}

	levels := audio.MeasureLevels(wf)
	logger.Debug("decoded audio",
		zap.Duration("duration", wf.Duration()),
		zap.Int("samples", levels.Samples),
		zap.Float64("rms_dbfs", levels.RMSdBFS),
		zap.Float64("peak_dbfs", levels.PeakdBFS),
		zap.Bool("silent", levels.Silent(audio.DefaultSilenceThresholdDBFS)),
	)

	result, err := h.deps.Transcriber.Transcribe(ctx, wf, modelName)
	if err != nil {
		status := writeError(w, err)
		logger.Error("transcription failed", zap.String("model", modelName), zap.Int("status", status), zap.Error(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(h.deps.MaxUploadMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, "", &ValidationError{Field: "file", Message: "request must be multipart/form-data"}
		}
		return nil, "", &ValidationError{Field: "file", Message: "invalid multipart form: " + err.Error()}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", &ValidationError{Field: "file", Message: "field required"}
		}
		return nil, "", &ValidationError{Field: "file", Message: err.Error()}
	}
	defer file.Close()

	modelName := h.deps.Transcriber.ModelName(r.FormValue("model"))
	if !h.acceptsModel(modelName) {
		return nil, "", &ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("%v %q", whisper.ErrUnknownModel, modelName),
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, modelName, nil
}

// acceptsModel allows catalogue names and the configured default only.
func (h *handlers) acceptsModel(name string) bool {
	if _, known := whisper.LookupModel(name); known {
		return true
	}
	return name == h.deps.Transcriber.DefaultModel()
}

// metricModel keeps client input out of metric labels unless it names an
// accepted model.
func (h *handlers) metricModel(raw string) string {
	name := h.deps.Transcriber.ModelName(raw)
	if h.acceptsModel(name) {
		return name
	}
	return telemetry.ModelRejected
}
