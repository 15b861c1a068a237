package api

import (
	"bytes"
	"image/png"
	"net/http"

	"github.com/nerrad567/lumy-core/internal/command"
)

// handleRefreshDisplay updates nothing and re-renders the current composite.
func (s *Server) handleRefreshDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.submit(w, r, command.RefreshDisplay, nil); !ok {
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Status: "success", Message: "Display refreshed", RequestID: requestID(r)})
}

// handleClearDisplay blanks the panel.
func (s *Server) handleClearDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.submit(w, r, command.ClearDisplay, nil); !ok {
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Status: "success", Message: "Display cleared", RequestID: requestID(r)})
}

// handlePreview returns the frame on the panel as a PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	img := s.panel.Snapshot()
	if img == nil {
		writeNotFound(w, "nothing has been rendered yet")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("encoding display preview failed", "error", err)
		writeInternalError(w, "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client may have gone
}
