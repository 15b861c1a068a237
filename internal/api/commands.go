package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/lumy-core/internal/command"
)

// submit sends one command through the bus on behalf of r. The reply is
// written as an error response when it cannot be obtained or failed; ok
// reports whether the caller should write a success response.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, name string, payload any) (command.Reply, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	rep, err := s.bus.Submit(ctx, name, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not answer in time")
			return rep, false
		}
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return rep, false
	}
	if !rep.Success {
		s.logger.Warn("api command failed",
			"command", name,
			"error", rep.Error,
			"request_id", requestID(r),
		)
		writeReplyError(w, rep)
		return rep, false
	}
	return rep, true
}

// decodeBody reads an optional JSON object body. An empty body yields nil.
func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// successResponse is the body of a successful action.
type successResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
