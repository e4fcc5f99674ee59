package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/topi314/clubhouse/server/clubs"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", slog.Any("err", err))
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, clubs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, clubs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, clubs.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, clubs.ErrAlreadyExists),
		errors.Is(err, clubs.ErrCapacityExceeded),
		errors.Is(err, clubs.ErrStateClosed):
		return http.StatusConflict
	case errors.Is(err, clubs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Failed to handle request", slog.Any("err", err))
	}
	writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", clubs.ErrInvalidInput, err)
	}
	return nil
}
