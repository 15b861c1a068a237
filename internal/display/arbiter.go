package display

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// Panel operations reported in Events.
const (
	OpRender = "render"
	OpClear  = "clear"
	OpSleep  = "sleep"
	OpWake   = "wake"
)

// Logger defines the logging interface for the arbiter.
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

// Options describe the panel.
type Options struct {
	// Width and Height are the panel's native pixel dimensions.
	Width, Height int

	// Rotation (0, 90, 180, 270) turns frames clockwise before the write.
	// With 90 or 270 the logical canvas is Height x Width.
	Rotation int

	ColorMode ColorMode

	// SleepAfterRefresh puts the panel into deep sleep after each write.
	SleepAfterRefresh bool

	// SettleDelay is waited between a write and the following sleep.
	SettleDelay time.Duration
}

// Event describes one completed panel operation.
type Event struct {
	Operation string
	Success   bool
	Duration  time.Duration
	At        time.Time
	Err       error
}

// Status is a point-in-time view of the panel.
type Status struct {
	Driver      string    `json:"driver"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	ColorMode   string    `json:"color_mode"`
	Asleep      bool      `json:"asleep"`
	LastRefresh time.Time `json:"last_refresh,omitzero"`
	Renders     int       `json:"renders"`
	Failures    int       `json:"failures"`
}

// Arbiter serialises all access to the panel.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mutating calls hold an
//     exclusive lock for the whole hardware transaction.
//   - Snapshot and Status never wait for a hardware write.
type Arbiter struct {
	mu     sync.Mutex // held for the full duration of every driver transaction
	driver Driver
	opts   Options
	closed bool
	wait   func(ctx context.Context, d time.Duration)

	stateMu     sync.RWMutex
	asleep      bool
	current     image.Image
	lastRefresh time.Time
	renders     int
	failures    int

	logger   Logger
	onRender func(Event)
	hookMu   sync.RWMutex
}

// NewArbiter wraps an initialised driver.
func NewArbiter(driver Driver, opts Options) *Arbiter {
	if opts.ColorMode == "" {
		opts.ColorMode = ColorRGB
	}
	return &Arbiter{
		driver: driver,
		opts:   opts,
		wait:   sleepCtx,
		logger: noopLogger{},
	}
}

// Open builds the driver named in cfg, initialises it and returns an Arbiter.
//
// A driver that cannot be built or initialised is replaced by the mock
// driver so the rest of the device keeps working without a panel.
//
// Parameters:
//   - ctx: Context for driver initialisation
//   - cfg: Display section of config.yaml
//   - logger: Receives the fallback warning; may be nil
//
// Returns:
//   - *Arbiter: Always non-nil
func Open(ctx context.Context, cfg config.DisplayConfig, logger Logger) *Arbiter {
	if logger == nil {
		logger = noopLogger{}
	}

	opts := Options{
		Width:             cfg.Width,
		Height:            cfg.Height,
		Rotation:          cfg.Rotation,
		ColorMode:         ColorMode(cfg.ColorMode),
		SleepAfterRefresh: cfg.SleepAfterRefresh,
		SettleDelay:       time.Duration(cfg.SettleDelayMS) * time.Millisecond,
	}

	driver, err := newDriver(cfg)
	if err == nil {
		err = safeCall(OpWake, func() error { return driver.Init(ctx) })
	}
	if err != nil {
		logger.Warn("display driver unavailable, using mock driver",
			"driver", cfg.Driver,
			"error", err,
		)
		driver = NewMockDriver()
	}

	a := NewArbiter(driver, opts)
	a.SetLogger(logger)
	logger.Info("display ready",
		"driver", driver.Name(),
		"width", opts.Width,
		"height", opts.Height,
		"color_mode", string(opts.ColorMode),
	)
	return a
}

// SetLogger sets the logger for display failures.
func (a *Arbiter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// SetOnRender registers a callback for every completed operation. It is
// invoked after the lock is released.
func (a *Arbiter) SetOnRender(fn func(Event)) {
	a.hookMu.Lock()
	a.onRender = fn
	a.hookMu.Unlock()
}

// Size returns the logical canvas size callers should compose for.
func (a *Arbiter) Size() image.Point {
	if a.opts.Rotation == 90 || a.opts.Rotation == 270 {
		return image.Point{X: a.opts.Height, Y: a.opts.Width}
	}
	return image.Point{X: a.opts.Width, Y: a.opts.Height}
}

// RenderImage wakes the panel, normalises img to the panel's size and
// colour mode, writes it and, if configured, settles and sleeps again.
// It returns false on any failure.
func (a *Arbiter) RenderImage(ctx context.Context, img image.Image) bool {
	return a.exclusive(ctx, OpRender, func(ctx context.Context) error {
		if img == nil {
			return ErrNilImage
		}
		if err := a.wakeLocked(ctx); err != nil {
			return err
		}

		logical := reduceColor(fitToSize(img, a.Size()), a.opts.ColorMode)
		frame := rotate(logical, a.opts.Rotation)

		if err := safeCall(OpRender, func() error { return a.driver.Display(context.WithoutCancel(ctx), frame) }); err != nil {
			return err
		}

		a.stateMu.Lock()
		a.current = logical
		a.lastRefresh = time.Now()
		a.stateMu.Unlock()

		if a.opts.SleepAfterRefresh {
			a.wait(ctx, a.opts.SettleDelay)
			return a.sleepLocked(ctx)
		}
		return nil
	})
}

// Clear blanks the panel.
func (a *Arbiter) Clear(ctx context.Context) bool {
	return a.exclusive(ctx, OpClear, func(ctx context.Context) error {
		if err := a.wakeLocked(ctx); err != nil {
			return err
		}
		if err := safeCall(OpClear, func() error { return a.driver.Clear(context.WithoutCancel(ctx)) }); err != nil {
			return err
		}

		a.stateMu.Lock()
		a.current = nil
		a.lastRefresh = time.Now()
		a.stateMu.Unlock()

		if a.opts.SleepAfterRefresh {
			return a.sleepLocked(ctx)
		}
		return nil
	})
}

// Sleep puts the panel into deep sleep. Sleeping an asleep panel is a no-op.
func (a *Arbiter) Sleep(ctx context.Context) bool {
	return a.exclusive(ctx, OpSleep, a.sleepLocked)
}

// Wake re-initialises a sleeping panel. Waking an awake panel is a no-op.
func (a *Arbiter) Wake(ctx context.Context) bool {
	return a.exclusive(ctx, OpWake, a.wakeLocked)
}

// Close waits for any in-flight operation, puts the panel to sleep and
// rejects further operations. The panel is not cleared, so the last image
// stays visible.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	err := a.sleepLocked(context.Background())
	if closer, ok := a.driver.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("closing display: %w", err)
	}
	return nil
}

// Snapshot returns the last rendered frame in logical orientation, after
// colour reduction. It returns nil before the first render or after Clear.
func (a *Arbiter) Snapshot() image.Image {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.current
}

// Status returns counters and panel state.
func (a *Arbiter) Status() Status {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return Status{
		Driver:      a.driver.Name(),
		Width:       a.opts.Width,
		Height:      a.opts.Height,
		ColorMode:   string(a.opts.ColorMode),
		Asleep:      a.asleep,
		LastRefresh: a.lastRefresh,
		Renders:     a.renders,
		Failures:    a.failures,
	}
}

// exclusive runs fn with the panel lock held and turns the outcome into a
// bool. Driver calls inside fn use a context detached from cancellation so a
// shutdown never interrupts a write halfway; the driver's own timeout applies.
// Only the settle delay honours ctx. A panic anywhere in fn, normalisation
// included, is recovered as ErrDriverPanic and the lock is released.
func (a *Arbiter) exclusive(ctx context.Context, op string, fn func(ctx context.Context) error) bool {
	var start time.Time
	err := func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		start = time.Now()
		if a.closed {
			return ErrClosed
		}
		return safeCall(op, func() error { return fn(ctx) })
	}()

	ev := Event{Operation: op, Success: err == nil, Duration: time.Since(start), At: start, Err: err}

	if op == OpRender || op == OpClear {
		a.stateMu.Lock()
		if err == nil {
			a.renders++
		} else {
			a.failures++
		}
		a.stateMu.Unlock()
	}

	if err != nil {
		a.logger.Error("display operation failed", "operation", op, "error", err)
	} else {
		a.logger.Debug("display operation complete", "operation", op, "duration_ms", ev.Duration.Milliseconds())
	}

	a.hookMu.RLock()
	hook := a.onRender
	a.hookMu.RUnlock()
	if hook != nil {
		hook(ev)
	}

	return err == nil
}

func (a *Arbiter) wakeLocked(ctx context.Context) error {
	a.stateMu.RLock()
	asleep := a.asleep
	a.stateMu.RUnlock()
	if !asleep {
		return nil
	}

	if err := safeCall(OpWake, func() error { return a.driver.Init(context.WithoutCancel(ctx)) }); err != nil {
		return err
	}
	a.setAsleep(false)
	return nil
}

func (a *Arbiter) sleepLocked(ctx context.Context) error {
	a.stateMu.RLock()
	asleep := a.asleep
	a.stateMu.RUnlock()
	if asleep {
		return nil
	}

	if err := safeCall(OpSleep, func() error { return a.driver.Sleep(context.WithoutCancel(ctx)) }); err != nil {
		return err
	}
	a.setAsleep(true)
	return nil
}

func (a *Arbiter) setAsleep(v bool) {
	a.stateMu.Lock()
	a.asleep = v
	a.stateMu.Unlock()
}

// safeCall runs fn, converting a panic into ErrDriverPanic.
func safeCall(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrDriverPanic, op, r)
		}
	}()
	return fn()
}

// sleepCtx waits for d, returning early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
