package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// maxResponseBody bounds how much of any backend response is read.
const maxResponseBody = 1 << 20

// Request kinds reported to the request hook.
const (
	RequestRegister           = "register"
	RequestRegistrationStatus = "registration_status"
	RequestConfig             = "config"
	RequestHeartbeat          = "heartbeat"
	RequestLog                = "log"
)

// Logger defines the logging interface for the cloud package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RegisterResponse is the backend's answer to a code registration.
type RegisterResponse struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}

// RegistrationStatus is the backend's view of the device's claim.
type RegistrationStatus struct {
	Registered bool   `json:"registered"`
	UserID     string `json:"user_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// Client is the REST client for the Lumy backend.
//
// Thread Safety:
//   - Safe for concurrent use; it holds no mutable state besides the
//     underlying http.Client.
type Client struct {
	baseURL        string
	apiKey         string
	authScheme     string
	statusEndpoint string
	deviceID       string
	http           *http.Client
	onRequest      func(kind string, err error)
}

// NewClient creates a client for deviceID.
//
// Parameters:
//   - cfg: Cloud configuration (URL, key, auth scheme, status endpoint, timeout)
//   - deviceID: The device's persistent identifier
//   - httpClient: Optional; nil builds one with cfg.RequestTimeout
//
// Returns:
//   - *Client: Ready client. Enabled reports false when URL or key is missing.
func NewClient(cfg config.CloudConfig, deviceID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:        cfg.URL,
		apiKey:         cfg.APIKey,
		authScheme:     cfg.AuthScheme,
		statusEndpoint: cfg.StatusEndpoint,
		deviceID:       deviceID,
		http:           httpClient,
	}
}

// SetOnRequest registers a callback run after every backend request with
// its kind (one of the Request* constants) and outcome. Set it before the
// client is shared.
func (c *Client) SetOnRequest(fn func(kind string, err error)) {
	c.onRequest = fn
}

// Enabled reports whether the client has enough settings to make requests.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// DeviceID returns the device id the client acts for.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// RegisterCode announces a pairing code for this device.
//
// POST /devices/register {device_id, registration_code, expires_in}
func (c *Client) RegisterCode(ctx context.Context, code string, expiresIn int) (*RegisterResponse, error) {
	body := map[string]any{
		"device_id":         c.deviceID,
		"registration_code": code,
		"expires_in":        expiresIn,
	}
	var resp RegisterResponse
	if err := c.do(ctx, RequestRegister, http.MethodPost, "/devices/register", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegistrationStatus asks whether a user has claimed this device.
//
// GET /devices/{id}/registration, or /devices/{id}/status when the backend
// is configured with the status endpoint variant.
func (c *Client) RegistrationStatus(ctx context.Context) (*RegistrationStatus, error) {
	path := c.devicePath(c.statusEndpoint)
	if c.statusEndpoint == "" {
		path = c.devicePath(config.StatusEndpointRegistration)
	}
	var resp RegistrationStatus
	if err := c.do(ctx, RequestRegistrationStatus, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchConfig returns the raw configuration document for this device.
//
// GET /devices/{id}/config. A 404 is reported as ErrNotRegistered.
func (c *Client) FetchConfig(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, RequestConfig, http.MethodGet, c.devicePath("config"), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// PostStatus sends a heartbeat.
//
// POST /devices/{id}/status
func (c *Client) PostStatus(ctx context.Context, hb Heartbeat) error {
	return c.do(ctx, RequestHeartbeat, http.MethodPost, c.devicePath("status"), hb, nil)
}

// Levels accepted by SendLog.
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// SendLog forwards a log entry to the backend.
//
// POST /devices/{id}/logs {level, message, timestamp}
func (c *Client) SendLog(ctx context.Context, level, message string) error {
	body := map[string]any{
		"device_id": c.deviceID,
		"level":     level,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return c.do(ctx, RequestLog, http.MethodPost, c.devicePath("logs"), body, nil)
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) devicePath(suffix string) string {
	return "/devices/" + url.PathEscape(c.deviceID) + "/" + suffix
}

// do performs one JSON round trip and reports it to the request hook.
func (c *Client) do(ctx context.Context, kind, method, path string, in, out any) error {
	err := c.roundTrip(ctx, method, path, in, out)
	if c.onRequest != nil && !errors.Is(err, ErrDisabled) {
		c.onRequest(kind, err)
	}
	return err
}

// roundTrip performs one JSON request. out may be nil.
func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return fmt.Errorf("%w: %s", ErrNotRegistered, c.deviceID)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch c.authScheme {
	case config.AuthSchemeBearer:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	default:
		req.Header.Set("X-API-KEY", c.apiKey)
	}
}
