package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	PlaceID string `json:"place_id,omitempty"`
}

// Error codes.
const (
	ErrCodeNotFound          = "not_found"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
	ErrCodeInternal          = "internal_error"
	ErrCodePlaceNotFound     = "place_not_found"
	ErrCodeExecutorNotCached = "executor_not_cached"
	ErrCodeExecutorStopping  = "executor_stopping"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Code: code, Message: message})
}

// writePlaceError reports a failure scoped to one place.
func writePlaceError(w http.ResponseWriter, status int, code, placeID, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Code: code, Message: message, PlaceID: placeID})
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
