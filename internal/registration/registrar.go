package registration

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nerrad567/lumy-core/internal/cloud"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// Logger defines the logging interface for the registration package.
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

// State is the device's pairing state.
type State string

// Pairing states.
const (
	Unregistered State = "unregistered"
	CodeIssued   State = "code_issued"
	Claimed      State = "claimed"
)

// Status is one answer to "has a user claimed this device?".
type Status struct {
	Registered bool
	UserID     string
	DeviceName string
}

// Result is where a registration run ended.
type Result struct {
	State      State  `json:"state"`
	DeviceID   string `json:"device_id"`
	UserID     string `json:"user_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	Code       Code   `json:"code,omitempty"`
}

// Backend is the part of the cloud client the registrar uses.
type Backend interface {
	Enabled() bool
	DeviceID() string
	RegisterCode(ctx context.Context, code string, expiresIn int) (*cloud.RegisterResponse, error)
	RegistrationStatus(ctx context.Context) (*cloud.RegistrationStatus, error)
}

// Display is the part of the display arbiter the registrar uses.
type Display interface {
	RenderImage(ctx context.Context, img image.Image) bool
	Size() image.Point
}

// Registrar runs the pairing flow.
//
// Thread Safety:
//   - Run is called once, from one goroutine. Snapshot may be called from
//     any goroutine.
type Registrar struct {
	backend Backend
	display Display
	repo    Repository
	clock   Clock
	logger  Logger

	pollInterval time.Duration
	timeout      time.Duration
	codeExpiry   int
	pairingURL   string

	mu     sync.RWMutex
	result Result
}

// NewRegistrar creates a registrar.
//
// Parameters:
//   - backend: Cloud client
//   - disp: Where the pairing screen is shown
//   - cfg: Poll interval, timeout, code expiry and the pairing URL
func NewRegistrar(backend Backend, disp Display, cfg config.RegistrationConfig) *Registrar {
	poll := time.Duration(cfg.PollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Hour
	}
	expiry := cfg.CodeExpiry
	if expiry <= 0 {
		expiry = 3600
	}
	return &Registrar{
		backend:      backend,
		display:      disp,
		clock:        realClock{},
		logger:       noopLogger{},
		pollInterval: poll,
		timeout:      timeout,
		codeExpiry:   expiry,
		pairingURL:   cfg.PairingURL,
		result:       Result{State: Unregistered, DeviceID: backend.DeviceID()},
	}
}

// SetLogger sets the logger.
func (r *Registrar) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetRepository records claims for status reporting.
func (r *Registrar) SetRepository(repo Repository) {
	r.repo = repo
}

// SetClock replaces the wall clock.
func (r *Registrar) SetClock(c Clock) {
	r.clock = c
}

// Snapshot returns the current pairing state.
func (r *Registrar) Snapshot() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

func (r *Registrar) set(fn func(*Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.result)
}

// CheckRegistrationStatus makes one status round trip. Any failure counts
// as "not registered".
func (r *Registrar) CheckRegistrationStatus(ctx context.Context) Status {
	resp, err := r.backend.RegistrationStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("registration check failed", "error", err)
		}
		return Status{}
	}
	if !resp.Registered {
		return Status{}
	}
	return Status{Registered: true, UserID: resp.UserID, DeviceName: resp.DeviceName}
}

// SendCode announces code to the backend. It reports whether the backend
// accepted it.
func (r *Registrar) SendCode(ctx context.Context, code Code) bool {
	resp, err := r.backend.RegisterCode(ctx, string(code), r.codeExpiry)
	if err != nil {
		r.logger.Error("sending registration code failed", "error", err)
		return false
	}
	if !resp.Success {
		r.logger.Error("backend rejected registration code")
		return false
	}
	r.logger.Info("registration code sent", "expires_at", resp.ExpiresAt)
	return true
}

// WaitForRegistration polls until the device is claimed or timeout
// elapses. Each poll is independent; only an explicit registered answer
// ends the wait early. Neither a poll nor the pause between polls runs
// past the deadline.
//
// Returns:
//   - bool: true once claimed; false on timeout or cancellation
func (r *Registrar) WaitForRegistration(ctx context.Context, timeout time.Duration) bool {
	start := r.clock.Now()
	deadline := start.Add(timeout)
	checks := 0

	for {
		if ctx.Err() != nil {
			return false
		}
		now := r.clock.Now()
		if !now.Before(deadline) {
			r.logger.Warn("registration timed out", "checks", checks)
			return false
		}

		checks++
		cctx, cancel := context.WithTimeout(ctx, deadline.Sub(now))
		st := r.CheckRegistrationStatus(cctx)
		cancel()
		if st.Registered {
			r.set(func(res *Result) {
				res.State = Claimed
				res.UserID = st.UserID
				res.DeviceName = st.DeviceName
			})
			r.logger.Info("device claimed",
				"user_id", st.UserID,
				"checks", checks,
				"elapsed", now.Sub(start).String(),
			)
			return true
		}

		wait := min(r.pollInterval, deadline.Sub(r.clock.Now()))
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return false
		case <-r.clock.After(wait):
		}
	}
}

// Run takes the device to a terminal pairing state.
//
// A device the backend already knows as claimed skips pairing entirely.
// Otherwise a code is generated, sent, shown on the panel, and the backend
// is polled until claimed or the configured timeout. With the cloud
// disabled the device stays unregistered and Run returns at once.
//
// Returns:
//   - Result: Claimed or Unregistered
//   - error: Only if no pairing code could be generated
func (r *Registrar) Run(ctx context.Context) (Result, error) {
	deviceID := r.backend.DeviceID()

	if !r.backend.Enabled() {
		r.logger.Warn("cloud not configured; skipping registration", "device_id", deviceID)
		return r.Snapshot(), nil
	}

	if st := r.CheckRegistrationStatus(ctx); st.Registered {
		r.set(func(res *Result) {
			res.State = Claimed
			res.UserID = st.UserID
			res.DeviceName = st.DeviceName
		})
		r.logger.Info("device already registered", "device_id", deviceID, "user_id", st.UserID)
		r.record(ctx)
		return r.Snapshot(), nil
	}

	code, err := GenerateCode()
	if err != nil {
		return r.Snapshot(), err
	}
	r.set(func(res *Result) {
		res.State = CodeIssued
		res.Code = code
	})
	r.logger.Info("registration code issued", "device_id", deviceID, "code", string(code))

	// A code the backend did not accept still goes on screen: the user can
	// read the device id off it and the next boot retries.
	r.SendCode(ctx, code)

	if r.display != nil {
		screen := PairingScreen(r.display.Size(), code, r.pairingURL, deviceID)
		if !r.display.RenderImage(ctx, screen) {
			r.logger.Warn("pairing screen not shown")
		}
	}

	if !r.WaitForRegistration(ctx, r.timeout) {
		r.set(func(res *Result) { res.State = Unregistered })
		r.record(ctx)
		return r.Snapshot(), nil
	}

	r.record(ctx)
	return r.Snapshot(), nil
}

func (r *Registrar) record(ctx context.Context) {
	if r.repo == nil || ctx.Err() != nil {
		return
	}
	res := r.Snapshot()
	now := r.clock.Now()
	claim := Claim{
		DeviceID:   res.DeviceID,
		Claimed:    res.State == Claimed,
		UserID:     res.UserID,
		DeviceName: res.DeviceName,
		CheckedAt:  now,
	}
	if claim.Claimed {
		claim.ClaimedAt = now
	}
	if err := r.repo.SaveClaim(ctx, claim); err != nil {
		r.logger.Warn("recording claim failed", "error", err)
	}
}
