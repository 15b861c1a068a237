package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/display"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumy-core/internal/metrics"
	"github.com/nerrad567/lumy-core/internal/registration"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// commandTimeout bounds one command round trip through the bus. A full
// e-paper refresh takes several seconds.
const commandTimeout = 25 * time.Second

// Submitter queues a command for the widget scheduler and waits for its reply.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any) (command.Reply, error)
}

// Panel is the read-only side of the display arbiter.
type Panel interface {
	Snapshot() image.Image
	Status() display.Status
}

// Pairing reports the registration state.
type Pairing interface {
	Snapshot() registration.Result
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Bus     Submitter
	Panel   Panel
	Pairing Pairing          // optional
	Metrics *metrics.Metrics // optional; nil disables /metrics and HTTP metrics
	DB      *sql.DB          // optional; nil disables the factory reset
	Sync    ConfigResetter   // optional
	Version string
}

// ConfigResetter forgets which cloud configuration was last applied.
type ConfigResetter interface {
	ForgetApplied()
}

// Server is the local control API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start() or Run().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bus       Submitter
	panel     Panel
	pairing   Pairing
	metrics   *metrics.Metrics
	db        *sql.DB
	sync      ConfigResetter
	version   string
	startTime time.Time
	hub       *Hub

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	cancel context.CancelFunc // stops the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, command bus, panel)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("command bus is required")
	}
	if deps.Panel == nil {
		return nil, fmt.Errorf("display panel is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bus:       deps.Bus,
		panel:     deps.Panel,
		pairing:   deps.Pairing,
		metrics:   deps.Metrics,
		db:        deps.DB,
		sync:      deps.Sync,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub, for publishing device events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Broadcast publishes an event to connected WebSocket clients.
func (s *Server) Broadcast(eventType string, payload any) {
	s.hub.Broadcast(eventType, payload)
}

// Start binds the listener and serves in a background goroutine.
//
// Parameters:
//   - ctx: Parent of the hub's lifetime
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.addr = ln.Addr()

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.addr.String())
	return nil
}

// Run starts the server and blocks until ctx ends, then shuts it down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.Addr() == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
