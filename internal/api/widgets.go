package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/widget"
)

// widgetListResponse is the body of GET /widgets.
type widgetListResponse struct {
	Widgets []widget.State `json:"widgets"`
	Count   int            `json:"count"`
}

// handleListWidgets lists configured widgets with their last data.
func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.submit(w, r, command.GetStatus, nil)
	if !ok {
		return
	}
	st, isStatus := rep.Data.(widget.Status)
	if !isStatus {
		writeInternalError(w, "unexpected status reply")
		return
	}
	widgets := st.Widgets
	if widgets == nil {
		widgets = []widget.State{}
	}
	writeJSON(w, http.StatusOK, widgetListResponse{Widgets: widgets, Count: len(widgets)})
}

// handleUpdateWidget merges the body into the widget's data, updates it and
// re-renders.
func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	s.widgetAction(w, r, command.UpdateWidget, "updated")
}

// handleTriggerWidget delivers the body to the widget as a one-off action.
func (s *Server) handleTriggerWidget(w http.ResponseWriter, r *http.Request) {
	s.widgetAction(w, r, command.TriggerWidget, "triggered")
}

func (s *Server) widgetAction(w http.ResponseWriter, r *http.Request, name, verb string) {
	id := chi.URLParam(r, "id")
	body, err := decodeBody(r)
	if err != nil {
		writeBadRequest(w, "request body must be a JSON object")
		return
	}
	if body == nil {
		body = map[string]any{}
	}

	payload := map[string]any{"widget_id": id, "data": body}
	if _, ok := s.submit(w, r, name, payload); !ok {
		return
	}
	writeJSON(w, http.StatusOK, successResponse{
		Status:    "success",
		Message:   "Widget " + id + " " + verb,
		RequestID: requestID(r),
	})
}
