package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/herald"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps Herald errors onto HTTP status codes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("api request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, herald.ErrValidation), errors.Is(err, herald.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, herald.ErrJobNotFound), errors.Is(err, herald.ErrCronNotFound):
		return http.StatusNotFound
	case errors.Is(err, herald.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, herald.ErrQueueClosed), errors.Is(err, herald.ErrNoExecutor):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &herald.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func jobIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "jobId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &herald.ValidationError{Field: "id", Reason: "invalid job ID " + strconv.Quote(raw)}
	}
	return id, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &herald.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
	}
	if n == 0 || n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
