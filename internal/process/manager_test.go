package process

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Manager
// =============================================================================

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "hostapd", Binary: "/usr/sbin/hostapd"})

	if m.config.RestartDelay != 2*time.Second {
		t.Errorf("RestartDelay = %v, want 2s", m.config.RestartDelay)
	}
	if m.config.GracefulTimeout != 5*time.Second {
		t.Errorf("GracefulTimeout = %v, want 5s", m.config.GracefulTimeout)
	}
	if m.Status() != StatusStopped || m.IsRunning() {
		t.Errorf("initial Status() = %q", m.Status())
	}
	if s := m.Stats(); s.Name != "hostapd" || s.PID != 0 || s.Restarts != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var exits atomic.Int32
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"30"},
		GracefulTimeout: 2 * time.Second,
		OnExit: func(err error) {
			if err == nil {
				exits.Add(1)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Fatalf("Status() = %q after Start", m.Status())
	}
	if m.Stats().PID == 0 {
		t.Error("Stats().PID = 0 while running")
	}

	if err := m.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q after Stop", m.Status())
	}
	if exits.Load() != 1 {
		t.Errorf("OnExit(nil) calls = %d, want 1", exits.Load())
	}
}

func TestManager_StartInvalidBinary(t *testing.T) {
	m := NewManager(Config{Name: "missing", Binary: "/nonexistent/daemon"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", m.Status())
	}
	if m.Stats().LastError == "" {
		t.Error("Stats().LastError empty after failed start")
	}
}

func TestManager_RestartLimit(t *testing.T) {
	exited := make(chan error, 8)
	m := NewManager(Config{
		Name:               "flaky",
		Binary:             "/bin/false",
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnExit:             func(err error) { exited <- err },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-exited:
			if err == nil {
				t.Errorf("exit %d: err = nil, want the exit status", i)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for exit %d", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().Restarts < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s := m.Stats(); s.Status != StatusFailed || s.Restarts != 3 {
		t.Errorf("Stats() = %+v, want failed after the limit", s)
	}
}

// =============================================================================
// ExecRunner
// =============================================================================

func TestExecRunner(t *testing.T) {
	r := ExecRunner{Timeout: 5 * time.Second}
	ctx := context.Background()

	out, err := r.Run(ctx, "/bin/echo", "hello")
	if err != nil {
		t.Fatalf("Run(echo) error = %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("Run(echo) = %q", out)
	}

	if _, err := r.Run(ctx, "/bin/sh", "-c", "echo boom >&2; exit 3"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Run(exit 3) error = %v, want ErrCommandFailed", err)
	} else if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not carry stderr", err)
	}

	if _, err := r.Run(ctx, "/nonexistent/tool"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Run(missing) error = %v, want ErrCommandFailed", err)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	r := ExecRunner{Timeout: 50 * time.Millisecond}

	start := time.Now()
	if _, err := r.Run(context.Background(), "/bin/sleep", "5"); err == nil {
		t.Fatal("Run() should fail when the timeout expires")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Run() took %v, timeout not applied", time.Since(start))
	}
}
