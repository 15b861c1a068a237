package portal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/wifi"
)

//go:embed web/*
var content embed.FS

// shutdownTimeout bounds in-flight requests once the portal is told to stop.
const shutdownTimeout = 5 * time.Second

// maxBodyBytes caps the configure request body.
const maxBodyBytes = 4 << 10

// probePaths are the connectivity checks of common client platforms.
var probePaths = []string{
	"/generate_204",
	"/gen_204",
	"/ncsi.txt",
	"/connecttest.txt",
	"/success.txt",
	"/hotspot-detect.html",
	"/library/test/success.html",
	"/canonical.html",
}

// Logger defines the logging interface for the portal.
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

// Provisioner is the part of wifi.Provisioner the portal drives.
type Provisioner interface {
	ScanNetworks(ctx context.Context) []wifi.Network
	SubmitCredentials(ctx context.Context, c wifi.Credentials) error
}

// Server is the captive portal HTTP server.
type Server struct {
	cfg    config.PortalConfig
	prov   Provisioner
	logger Logger
	page   []byte
}

// New creates a portal for prov.
//
// Returns:
//   - error: Only if the embedded page is missing (a build problem)
func New(cfg config.PortalConfig, prov Provisioner) (*Server, error) {
	page, err := fs.ReadFile(content, "web/index.html")
	if err != nil {
		return nil, fmt.Errorf("loading setup page: %w", err)
	}
	return &Server{cfg: cfg, prov: prov, logger: noopLogger{}, page: page}, nil
}

// SetLogger sets the logger.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Handler returns the portal's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/", s.handleIndex)
	for _, p := range probePaths {
		r.Get(p, s.handleIndex)
	}
	r.Get("/api/scan", s.handleScan)
	r.Post("/api/configure", s.handleConfigure)

	r.NotFound(s.handleIndex)
	r.MethodNotAllowed(s.handleIndex)
	return r
}

// Serve listens on the configured address until ctx ends. A bind failure
// is returned at once.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("captive portal listening", "address", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down portal: %w", err)
	}
	s.logger.Info("captive portal stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(s.page) //nolint:errcheck // client may have gone
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prov.ScanNetworks(r.Context()))
}

type configureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var creds wifi.Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, configureResponse{Error: "invalid request body"})
		return
	}
	if creds.SSID == "" {
		writeJSON(w, http.StatusBadRequest, configureResponse{Error: "SSID is required"})
		return
	}

	err := s.prov.SubmitCredentials(r.Context(), creds)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, configureResponse{Success: true, Message: "WiFi configured, rebooting"})
	case errors.Is(err, wifi.ErrInvalidSSID), errors.Is(err, wifi.ErrInvalidPassword):
		writeJSON(w, http.StatusBadRequest, configureResponse{Error: err.Error()})
	case errors.Is(err, wifi.ErrRebootPending):
		writeJSON(w, http.StatusConflict, configureResponse{Error: "device is already rebooting"})
	case errors.Is(err, wifi.ErrNotAccepting):
		writeJSON(w, http.StatusConflict, configureResponse{Error: "credentials are already being applied"})
	default:
		s.logger.Error("applying wifi credentials failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, configureResponse{Error: "failed to save WiFi configuration"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort write; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// loggingMiddleware logs each request at debug level; probes are frequent.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("portal request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in portal handler", "error", err, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, configureResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
