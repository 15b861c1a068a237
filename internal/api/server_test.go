package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/display"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumy-core/internal/metrics"
	"github.com/nerrad567/lumy-core/internal/registration"
	"github.com/nerrad567/lumy-core/internal/widget"
)

// submitted is one command seen by fakeBus.
type submitted struct {
	name    string
	payload any
}

// fakeBus answers commands with reply, or fails the submission with err.
type fakeBus struct {
	mu    sync.Mutex
	calls []submitted
	reply func(name string) command.Reply
	err   error
}

func (b *fakeBus) Submit(_ context.Context, name string, payload any) (command.Reply, error) {
	b.mu.Lock()
	b.calls = append(b.calls, submitted{name: name, payload: payload})
	b.mu.Unlock()
	if b.err != nil {
		return command.Reply{}, b.err
	}
	if b.reply == nil {
		return command.Reply{ID: "r-1", Command: name, Success: true}, nil
	}
	rep := b.reply(name)
	rep.Command = name
	return rep, nil
}

func (b *fakeBus) last(t *testing.T) submitted {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		t.Fatal("no command submitted")
	}
	return b.calls[len(b.calls)-1]
}

type fakePanel struct {
	frame image.Image
}

func (p *fakePanel) Snapshot() image.Image { return p.frame }

func (p *fakePanel) Status() display.Status {
	return display.Status{Driver: "mock", Width: 800, Height: 480, ColorMode: "1bit", Renders: 3}
}

type fakePairing struct{}

func (fakePairing) Snapshot() registration.Result {
	return registration.Result{State: registration.Claimed, DeviceID: "lumy-ddeeff-0123", UserID: "u-9"}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// testServer creates a Server over fakes.
func testServer(t *testing.T, bus *fakeBus, panel *fakePanel) *Server {
	t.Helper()
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  testLogger(),
		Bus:     bus,
		Panel:   panel,
		Pairing: fakePairing{},
		Metrics: metrics.New("test"),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Bus: &fakeBus{}, Panel: &fakePanel{}}},
		{"no bus", Deps{Logger: testLogger(), Panel: &fakePanel{}}},
		{"no panel", Deps{Logger: testLogger(), Bus: &fakeBus{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t, &fakeBus{}, &fakePanel{})

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	h := testServer(t, &fakeBus{}, &fakePanel{}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-7" {
		t.Errorf("X-Request-ID = %q, want client-7", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := testServer(t, &fakeBus{}, &fakePanel{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/display/refresh", nil)
	req.Header.Set("Origin", "http://lumy.local")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://lumy.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t, &fakeBus{}, &fakePanel{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Display ───────────────────────────────────────────────────────

func TestDisplayCommands(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		replyErr    string
		wantCommand string
		wantStatus  int
	}{
		{"refresh", "/api/v1/display/refresh", "", command.RefreshDisplay, http.StatusOK},
		{"clear", "/api/v1/display/clear", "", command.ClearDisplay, http.StatusOK},
		{"refresh fails", "/api/v1/display/refresh", widget.ErrRenderFailed.Error(), command.RefreshDisplay, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{reply: func(string) command.Reply {
				return command.Reply{Success: tt.replyErr == "", Error: tt.replyErr}
			}}
			w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodPost, tt.path, "")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := bus.last(t).name; got != tt.wantCommand {
				t.Errorf("command = %q, want %q", got, tt.wantCommand)
			}
		})
	}
}

func TestDisplayCommand_BusErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"timeout", fmt.Errorf("waiting for reply: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"bus full", command.ErrBusFull, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{err: tt.err}
			w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodPost, "/api/v1/display/clear", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 8, 4))
	frame.SetGray(1, 1, color.Gray{Y: 255})

	w := do(t, testServer(t, &fakeBus{}, &fakePanel{frame: frame}).Handler(), http.MethodGet, "/api/v1/display/preview", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("decoding preview: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("preview bounds = %v", img.Bounds())
	}
}

func TestPreview_NothingRendered(t *testing.T) {
	w := do(t, testServer(t, &fakeBus{}, &fakePanel{}).Handler(), http.MethodGet, "/api/v1/display/preview", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Widgets ───────────────────────────────────────────────────────

func TestListWidgets(t *testing.T) {
	bus := &fakeBus{reply: func(string) command.Reply {
		return command.Reply{Success: true, Data: widget.Status{
			IntervalSeconds: 300,
			Widgets: []widget.State{
				{ID: "clock", Type: "clock", Enabled: true, Data: widget.Data{"time": "09:00"}},
				{ID: "weather", Type: "weather", Enabled: false},
			},
		}}
	}}

	w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodGet, "/api/v1/widgets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[widgetListResponse](t, w)
	if resp.Count != 2 || resp.Widgets[0].ID != "clock" || resp.Widgets[1].Enabled {
		t.Errorf("widgets = %+v", resp)
	}
	if bus.last(t).name != command.GetStatus {
		t.Errorf("command = %q", bus.last(t).name)
	}
}

func TestListWidgets_EmptyIsArray(t *testing.T) {
	bus := &fakeBus{reply: func(string) command.Reply {
		return command.Reply{Success: true, Data: widget.Status{}}
	}}
	w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodGet, "/api/v1/widgets", "")
	if !strings.Contains(w.Body.String(), `"widgets":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestWidgetActions(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		replyErr    string
		wantCommand string
		wantStatus  int
		wantData    map[string]any
	}{
		{
			name: "update", path: "/api/v1/widgets/message/update",
			body: `{"text":"Dinner at 7"}`, wantCommand: command.UpdateWidget,
			wantStatus: http.StatusOK, wantData: map[string]any{"text": "Dinner at 7"},
		},
		{
			name: "trigger without body", path: "/api/v1/widgets/clock/trigger",
			wantCommand: command.TriggerWidget, wantStatus: http.StatusOK, wantData: map[string]any{},
		},
		{
			name: "unknown widget", path: "/api/v1/widgets/nope/update", body: `{}`,
			replyErr: "widget: not found: nope", wantCommand: command.UpdateWidget,
			wantStatus: http.StatusNotFound, wantData: map[string]any{},
		},
		{
			name: "widget update fails", path: "/api/v1/widgets/weather/update", body: `{}`,
			replyErr: "weather: upstream 503", wantCommand: command.UpdateWidget,
			wantStatus: http.StatusInternalServerError, wantData: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{reply: func(string) command.Reply {
				return command.Reply{Success: tt.replyErr == "", Error: tt.replyErr}
			}}
			w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodPost, tt.path, tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			call := bus.last(t)
			if call.name != tt.wantCommand {
				t.Errorf("command = %q, want %q", call.name, tt.wantCommand)
			}
			p, ok := call.payload.(map[string]any)
			if !ok {
				t.Fatalf("payload type %T", call.payload)
			}
			id := strings.Split(tt.path, "/")[4]
			if p["widget_id"] != id {
				t.Errorf("widget_id = %v, want %s", p["widget_id"], id)
			}
			data, _ := p["data"].(map[string]any)
			if len(data) != len(tt.wantData) {
				t.Errorf("data = %v, want %v", data, tt.wantData)
			}
			for k, v := range tt.wantData {
				if data[k] != v {
					t.Errorf("data[%s] = %v, want %v", k, data[k], v)
				}
			}
		})
	}
}

func TestWidgetAction_BadBody(t *testing.T) {
	bus := &fakeBus{}
	w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodPost, "/api/v1/widgets/message/update", `["not","an","object"]`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(bus.calls) != 0 {
		t.Error("bad body reached the bus")
	}
}

// ─── Status ────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	bus := &fakeBus{reply: func(string) command.Reply {
		return command.Reply{Success: true, Data: widget.Status{IntervalSeconds: 60, LastRenderOK: true}}
	}}
	w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[StatusResponse](t, w)
	if resp.Status != StatusOnline {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Scheduler == nil || resp.Scheduler.IntervalSeconds != 60 || !resp.Scheduler.LastRenderOK {
		t.Errorf("scheduler = %+v", resp.Scheduler)
	}
	if resp.Display.Driver != "mock" || resp.Display.Renders != 3 {
		t.Errorf("display = %+v", resp.Display)
	}
	if resp.Device == nil || resp.Device.State != registration.Claimed {
		t.Errorf("device = %+v", resp.Device)
	}
}

func TestStatus_DegradedWhenSchedulerSilent(t *testing.T) {
	bus := &fakeBus{err: errors.New("waiting for get_status reply: context deadline exceeded")}
	w := do(t, testServer(t, bus, &fakePanel{}).Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[StatusResponse](t, w)
	if resp.Status != StatusDegraded || resp.Error == "" || resp.Scheduler != nil {
		t.Errorf("status = %+v", resp)
	}
	if resp.Display.Width != 800 {
		t.Error("panel status missing from degraded response")
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	h := testServer(t, &fakeBus{}, &fakePanel{}).Handler()
	do(t, h, http.MethodPost, "/api/v1/widgets/clock/trigger", "")

	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `lumy_http_requests_total{route="/api/v1/widgets/{id}/trigger",status="2xx"} 1`) {
		t.Errorf("route pattern series missing:\n%s", body)
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	srv, err := New(Deps{Logger: testLogger(), Bus: &fakeBus{}, Panel: &fakePanel{}})
	if err != nil {
		t.Fatal(err)
	}
	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{EventDisplayRendered: {}},
	}
	hub.Register(client)

	hub.Broadcast(EventDisplayRendered, map[string]any{"success": true})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != EventDisplayRendered {
			t.Errorf("message = %+v", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{EventWidgetUpdated: {}},
	}
	hub.Register(client)

	hub.Broadcast(EventDisplayRendered, nil)

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCountAndClose(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	cancel()
	<-done
	if hub.ClientCount() != 0 {
		t.Errorf("after close count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel not closed")
	}
	// Unregister after close must not double-close.
	hub.Unregister(client)
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	srv := testServer(t, &fakeBus{}, &fakePanel{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Hub().ClientCount() != 1 {
		t.Fatalf("client count = %d", srv.Hub().ClientCount())
	}

	srv.Broadcast(EventDisplayRendered, map[string]any{"operation": "render", "success": true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.EventType != EventDisplayRendered {
		t.Errorf("event_type = %q", msg.EventType)
	}

	if err := conn.WriteJSON(map[string]any{"type": WSTypePing, "id": "p1"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, &fakeBus{}, &fakePanel{})
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health") //nolint:noctx // test
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := testServer(t, &fakeBus{}, &fakePanel{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run() did not return")
	}
}
