package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// =============================================================================
// Fake backend
// =============================================================================

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(w http.ResponseWriter)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, responses: make(map[string]func(w http.ResponseWriter))}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	respond := b.responses[key]
	b.mu.Unlock()

	if respond == nil {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
		return
	}
	respond(w)
}

// on sets the response for "METHOD /path".
func (b *fakeBackend) on(key string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[key] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func (b *fakeBackend) recorded() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func (b *fakeBackend) client(scheme, endpoint string) *Client {
	return NewClient(config.CloudConfig{
		URL:            b.srv.URL,
		APIKey:         "secret-key",
		AuthScheme:     scheme,
		StatusEndpoint: endpoint,
		RequestTimeout: 5,
	}, "lumy-ddeeff-1a2b", nil)
}

// =============================================================================
// Client
// =============================================================================

func TestClient_AuthHeader(t *testing.T) {
	tests := []struct {
		scheme string
		header string
		want   string
		absent string
	}{
		{config.AuthSchemeAPIKey, "X-API-KEY", "secret-key", "Authorization"},
		{config.AuthSchemeBearer, "Authorization", "Bearer secret-key", "X-API-KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			b := newFakeBackend(t)
			if _, err := b.client(tt.scheme, config.StatusEndpointRegistration).RegistrationStatus(context.Background()); err != nil {
				t.Fatalf("RegistrationStatus() error = %v", err)
			}
			req := b.recorded()[0]
			if got := req.Header.Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
			if got := req.Header.Get(tt.absent); got != "" {
				t.Errorf("%s = %q, want unset", tt.absent, got)
			}
		})
	}
}

func TestClient_RegistrationStatusEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		wantPath string
	}{
		{config.StatusEndpointRegistration, "/devices/lumy-ddeeff-1a2b/registration"},
		{config.StatusEndpointStatus, "/devices/lumy-ddeeff-1a2b/status"},
		{"", "/devices/lumy-ddeeff-1a2b/registration"},
	}

	for _, tt := range tests {
		t.Run(tt.wantPath, func(t *testing.T) {
			b := newFakeBackend(t)
			b.on("GET "+tt.wantPath, http.StatusOK, `{"registered":true,"user_id":"u-1","device_name":"Kitchen"}`)

			st, err := b.client(config.AuthSchemeAPIKey, tt.endpoint).RegistrationStatus(context.Background())
			if err != nil {
				t.Fatalf("RegistrationStatus() error = %v", err)
			}
			if !st.Registered || st.UserID != "u-1" || st.DeviceName != "Kitchen" {
				t.Errorf("status = %+v", st)
			}
		})
	}
}

func TestClient_RegisterCode(t *testing.T) {
	b := newFakeBackend(t)
	b.on("POST /devices/register", http.StatusOK, `{"success":true,"code":"ABC-234","expires_at":"2026-10-19T15:00:00Z"}`)

	resp, err := b.client(config.AuthSchemeAPIKey, "").RegisterCode(context.Background(), "ABC-234", 3600)
	if err != nil {
		t.Fatalf("RegisterCode() error = %v", err)
	}
	if !resp.Success || resp.Code != "ABC-234" {
		t.Errorf("response = %+v", resp)
	}

	var body map[string]any
	if err := json.Unmarshal(b.recorded()[0].Body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if body["device_id"] != "lumy-ddeeff-1a2b" || body["registration_code"] != "ABC-234" || body["expires_in"] != float64(3600) {
		t.Errorf("request body = %v", body)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{}`, ErrNotRegistered},
		{"server error", http.StatusInternalServerError, `oops`, ErrUnexpectedStatus},
		{"malformed", http.StatusOK, `{"display":`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(t)
			b.on("GET /devices/lumy-ddeeff-1a2b/config", tt.status, tt.body)

			_, err := b.client(config.AuthSchemeAPIKey, "").FetchConfig(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(config.CloudConfig{URL: "http://cloud.invalid"}, "lumy-1", nil)
	if c.Enabled() {
		t.Fatal("Enabled() = true without an api key")
	}
	if _, err := c.RegistrationStatus(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("RegistrationStatus() error = %v, want ErrDisabled", err)
	}
}

func TestClient_SendLog(t *testing.T) {
	b := newFakeBackend(t)
	if err := b.client(config.AuthSchemeAPIKey, "").SendLog(context.Background(), "warn", "panel slow"); err != nil {
		t.Fatalf("SendLog() error = %v", err)
	}
	req := b.recorded()[0]
	if req.Path != "/devices/lumy-ddeeff-1a2b/logs" {
		t.Errorf("path = %q", req.Path)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["level"] != "warn" || body["message"] != "panel slow" || body["timestamp"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestClient_RequestHook(t *testing.T) {
	b := newFakeBackend(t)
	b.on("GET /devices/lumy-ddeeff-1a2b/config", http.StatusInternalServerError, `oops`)

	type observed struct {
		kind string
		err  error
	}
	var got []observed
	c := b.client(config.AuthSchemeAPIKey, "")
	c.SetOnRequest(func(kind string, err error) { got = append(got, observed{kind, err}) })

	if err := c.SendLog(context.Background(), "info", "hello"); err != nil {
		t.Fatal(err)
	}
	c.FetchConfig(context.Background()) //nolint:errcheck // failure is observed below

	if len(got) != 2 {
		t.Fatalf("observed %d requests, want 2", len(got))
	}
	if got[0].kind != RequestLog || got[0].err != nil {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].kind != RequestConfig || !errors.Is(got[1].err, ErrUnexpectedStatus) {
		t.Errorf("second = %+v", got[1])
	}

	disabled := NewClient(config.CloudConfig{}, "lumy-1", nil)
	disabled.SetOnRequest(func(string, error) { t.Error("hook called for a disabled client") })
	disabled.FetchConfig(context.Background()) //nolint:errcheck // disabled
}
