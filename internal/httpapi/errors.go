package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/backend"
	"inferd/internal/batch"
	"inferd/internal/router"
	"inferd/pkg/types"
)

// writeJSON writes any payload with the right header and status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps engine errors onto HTTP statuses. Busy and queue-full
// rejections also count as backpressure so operators can alert on them.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case router.IsBusy(err):
		IncrementBackpressure("load_in_progress")
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case batch.IsQueueFull(err):
		IncrementBackpressure("queue_full")
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case router.IsNotFound(err), batch.IsUnknownRequest(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case router.IsNoModel(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case router.IsUnknownBackend(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case batch.IsCanceled(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case batch.IsClosed(err):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		var ex *router.ExhaustedError
		if errors.As(err, &ex) {
			writeExhausted(w, ex)
			return
		}
		var be *backend.Error
		if errors.As(err, &be) {
			writeBackendError(w, be)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeExhausted reports a spent fallback chain with the per-backend
// attempts and remediation hints attached.
func writeExhausted(w http.ResponseWriter, ex *router.ExhaustedError) {
	attempts := make([]types.AttemptError, len(ex.Attempts))
	for i, a := range ex.Attempts {
		attempts[i] = types.AttemptError{
			Backend: a.Backend,
			Kind:    string(a.Kind),
			Error:   a.Reason,
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{
		Error:    ex.Error(),
		Code:     http.StatusServiceUnavailable,
		Attempts: attempts,
		Hints:    ex.Hints,
	})
}

func writeBackendError(w http.ResponseWriter, be *backend.Error) {
	status := statusForKind(be.Kind)
	resp := types.ErrorResponse{
		Error: be.Error(),
		Code:  status,
		Kind:  string(be.Kind),
	}
	if h := be.Kind.Hint(be.Backend); h != "" {
		resp.Hints = []string{h}
	}
	writeJSON(w, status, resp)
}

func statusForKind(k backend.Kind) int {
	switch k {
	case backend.KindAvailability:
		return http.StatusServiceUnavailable
	case backend.KindConfiguration:
		return http.StatusBadRequest
	case backend.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
