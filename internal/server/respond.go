package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"minuto/internal/progress"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrInvalidTransition), errors.Is(err, progress.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, progress.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrLimitExceeded):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeError(err)
	}
	return nil
}

func decodeError(err error) error {
	return fmt.Errorf("invalid request body: %v: %w", err, progress.ErrInvalidConfiguration)
}
