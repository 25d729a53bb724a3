package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RespondJSON writes v as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// DecodeJSON parses the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// RespondError maps shared error categories onto HTTP statuses. Package
// specific errors should wrap one of the shared sentinels so they land in
// the right bucket; anything unmapped becomes a 500 without leaking detail.
func RespondError(logger *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "validation"})
	case errors.Is(err, ErrNotFound):
		RespondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, ErrStateConflict):
		RespondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "state_conflict"})
	case errors.Is(err, ErrStepUpRateLimited):
		RespondJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Kind: "step_up_rate_limited"})
	case errors.Is(err, ErrStepUpRequired):
		RespondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Kind: "step_up_required"})
	case errors.Is(err, ErrTransient):
		RespondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "temporary conflict, retry the request", Kind: "transient"})
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		RespondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
