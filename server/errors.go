package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hupe1980/agentconductor/assistant"
	"github.com/hupe1980/agentconductor/core"
)

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrProvider):
		// checked first: the cause of a provider failure may wrap any sentinel
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrDuplicateTool), errors.Is(err, core.ErrUnknownTool):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case assistant.IsRunError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{Error: err.Error()})
}
