package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/obs"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {kind, message}. Only the caller-safe message
// leaves the process; unexpected causes were logged where they were wrapped.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, msg := apperr.Public(err)
	if kind == apperr.KindUnexpected {
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			obs.From(r.Context()).Error("unclassified handler error", zap.Error(err))
		}
	}
	writeErrorBody(w, r, apperr.HTTPStatus(kind), string(kind), msg)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{
		Error:     errorBody{Kind: kind, Message: msg},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("Request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("Request body is too large")
		}
		return apperr.BadRequest("Invalid request body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.BadRequest("Unexpected data after JSON body")
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.BadRequest("Invalid %s %q", name, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.BadRequest("%s must be a non-negative integer", name)
	}
	return v, nil
}
