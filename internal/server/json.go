package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrModelNotFound), errors.Is(err, registry.ErrColumnNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrRegistryNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, lineage.ErrMalformedQuery),
		errors.Is(err, service.ErrInvalidSelector),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes it as {"error": "..."}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}
