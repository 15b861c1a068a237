package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the state of a supervised daemon.
type Status string

// Daemon states.
const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// Config describes a supervised daemon.
type Config struct {
	// Name identifies the daemon in logs.
	Name string

	// Binary is the path to the executable.
	Binary string

	Args []string

	// RestartOnFailure restarts the daemon when it exits on its own.
	RestartOnFailure bool

	// RestartDelay is waited before each restart.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnExit is called each time the daemon exits; err is nil after Stop.
	OnExit func(err error)
}

// Logger defines the logging interface for the process package.
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

// Manager supervises one daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restarts      int
	lastError     error
	startTime     time.Time
	stopRequested bool
	done          chan struct{}
}

// NewManager creates a manager for cfg. Zero delays get defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 2 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the daemon and supervises it until Stop or ctx ends.
//
// Returns:
//   - error: ErrAlreadyRunning, or the exec failure for the first start
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.spawn(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx)
	return nil
}

func (m *Manager) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binaries come from config.yaml

	// Own process group so Stop reaches any children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.capture("stdout", stdout)
	go m.capture("stderr", stderr)

	m.logger.Info("daemon started", "name", m.config.Name, "pid", cmd.Process.Pid)
	return nil
}

// capture logs the daemon's output line by line.
func (m *Manager) capture(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.logger.Debug("daemon output",
			"name", m.config.Name,
			"stream", stream,
			"line", sc.Text(),
		)
	}
}

func (m *Manager) supervise(ctx context.Context) {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	defer close(done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()

		err := cmd.Wait()

		m.mu.Lock()
		stopped := m.stopRequested
		if stopped {
			m.status = StatusStopped
		} else {
			m.status = StatusFailed
			m.lastError = err
		}
		m.mu.Unlock()

		if stopped {
			m.logger.Info("daemon stopped", "name", m.config.Name)
			m.exited(nil)
			return
		}

		m.logger.Warn("daemon exited", "name", m.config.Name, "error", err)
		m.exited(err)

		if !m.config.RestartOnFailure || ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		m.restarts++
		attempt := m.restarts
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("daemon restart limit reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		m.logger.Info("restarting daemon", "name", m.config.Name, "attempt", attempt, "delay", m.config.RestartDelay)
		t := time.NewTimer(m.config.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		m.mu.RLock()
		stopped = m.stopRequested
		m.mu.RUnlock()
		if stopped {
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return
		}

		if err := m.spawn(ctx); err != nil {
			m.logger.Error("daemon restart failed", "name", m.config.Name, "error", err)
			m.mu.Lock()
			m.lastError = err
			m.mu.Unlock()
			return
		}
	}
}

func (m *Manager) exited(err error) {
	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

// Stop sends SIGTERM to the daemon's process group, escalating to SIGKILL
// after the graceful timeout. Stopping a stopped daemon is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning && m.status != StatusStarting {
		m.stopRequested = true
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping daemon", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("sending SIGTERM failed", "name", m.config.Name, "error", err)
	}

	t := time.NewTimer(m.config.GracefulTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		m.logger.Warn("daemon ignored SIGTERM, killing", "name", m.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the daemon state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the daemon is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// Stats is a point-in-time view of a daemon.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the daemon.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Name: m.config.Name, Status: m.status, Restarts: m.restarts}
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		s.PID = m.cmd.Process.Pid
		s.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}
