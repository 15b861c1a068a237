package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/widget"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeTimeout     = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeReplyError maps a failed command reply to an HTTP error. Replies
// carry only the error text, so the scheduler's sentinels are matched by
// prefix.
func writeReplyError(w http.ResponseWriter, rep command.Reply) {
	msg := rep.Error
	switch {
	case strings.HasPrefix(msg, widget.ErrNotFound.Error()):
		writeNotFound(w, msg)
	case strings.HasPrefix(msg, widget.ErrMissingID.Error()),
		strings.HasPrefix(msg, command.ErrInvalidPayload.Error()),
		strings.HasPrefix(msg, widget.ErrUnknownType.Error()):
		writeBadRequest(w, msg)
	default:
		writeInternalError(w, msg)
	}
}
