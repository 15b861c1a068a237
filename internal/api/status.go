package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/display"
	"github.com/nerrad567/lumy-core/internal/registration"
	"github.com/nerrad567/lumy-core/internal/widget"
)

// Device statuses reported by GET /status.
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
)

// statusTimeout bounds the wait for the scheduler's part of GET /status.
const statusTimeout = 5 * time.Second

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string               `json:"status"`
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Device        *registration.Result `json:"device,omitempty"`
	Display       display.Status       `json:"display"`
	Scheduler     *SchedulerStatus     `json:"scheduler,omitempty"`
	Runtime       RuntimeMetrics       `json:"runtime"`
	WebSocket     WSMetrics            `json:"websocket"`
	Error         string               `json:"error,omitempty"`
}

// SchedulerStatus is the scheduler part of StatusResponse.
type SchedulerStatus struct {
	IntervalSeconds int            `json:"interval_seconds"`
	LastTick        time.Time      `json:"last_tick,omitzero"`
	LastRenderOK    bool           `json:"last_render_ok"`
	Widgets         []widget.State `json:"widgets"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleStatus reports the device, panel and scheduler. The panel part never
// waits on the scheduler; if the scheduler does not answer the response is
// still 200 with status "degraded".
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatusResponse{
		Status:        StatusOnline,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Display:       s.panel.Status(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}
	if s.pairing != nil {
		res := s.pairing.Snapshot()
		resp.Device = &res
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()
	rep, err := s.bus.Submit(ctx, command.GetStatus, nil)
	switch {
	case err != nil:
		resp.Status = StatusDegraded
		resp.Error = err.Error()
	case !rep.Success:
		resp.Status = StatusDegraded
		resp.Error = rep.Error
	default:
		if st, ok := rep.Data.(widget.Status); ok {
			resp.Scheduler = &SchedulerStatus{
				IntervalSeconds: st.IntervalSeconds,
				LastTick:        st.LastTick,
				LastRenderOK:    st.LastRenderOK,
				Widgets:         st.Widgets,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
