package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/whisper"
)

// ValidationError reports a request that is missing or misusing a field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func statusFor(err error) int {
	var validationErr *ValidationError
	var decodeErr *audio.DecodeError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, whisper.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
	return status
}
