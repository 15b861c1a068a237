package display

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// Driver is the hardware side of the panel.
//
// Drivers are called with the Arbiter's lock held and never concurrently.
// Init doubles as wake: e-paper controllers come out of deep sleep by being
// re-initialised.
type Driver interface {
	Name() string
	Init(ctx context.Context) error
	Display(ctx context.Context, img image.Image) error
	Clear(ctx context.Context) error
	Sleep(ctx context.Context) error
}

// newDriver builds the driver named in cfg.
func newDriver(cfg config.DisplayConfig) (Driver, error) {
	switch cfg.Driver {
	case config.DisplayDriverMock, "":
		return NewMockDriver(), nil
	case config.DisplayDriverFile:
		return NewFileDriver(cfg.OutputPath, cfg.Width, cfg.Height), nil
	case config.DisplayDriverCommand:
		return NewCommandDriver(cfg.Command, cfg.CommandArgs, cfg.Model,
			time.Duration(cfg.CommandTimeout)*time.Second), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Op is one driver call recorded by MockDriver.
type Op struct {
	Kind  string // init, display, clear, sleep
	Start time.Time
	End   time.Time
}

// MockDriver is an in-memory Driver.
//
// It records every call with start and end times, tracks how many calls
// were in flight at once, and can be told to fail or slow down.
type MockDriver struct {
	delay time.Duration

	active    atomic.Int32
	maxActive atomic.Int32

	mu      sync.Mutex
	ops     []Op
	last    image.Image
	failOn  map[string]error
	panicOn map[string]bool
}

// NewMockDriver returns a MockDriver with no delay.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		failOn:  make(map[string]error),
		panicOn: make(map[string]bool),
	}
}

// SetDelay makes every call take at least d.
func (m *MockDriver) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// FailOn makes calls of kind return err. A nil err clears the failure.
func (m *MockDriver) FailOn(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, kind)
		return
	}
	m.failOn[kind] = err
}

// PanicOn makes calls of kind panic.
func (m *MockDriver) PanicOn(kind string) {
	m.mu.Lock()
	m.panicOn[kind] = true
	m.mu.Unlock()
}

// Ops returns a copy of the recorded calls in completion order.
func (m *MockDriver) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// MaxConcurrent returns the highest number of calls observed in flight at once.
func (m *MockDriver) MaxConcurrent() int {
	return int(m.maxActive.Load())
}

// Last returns the last image passed to Display.
func (m *MockDriver) Last() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *MockDriver) Name() string { return config.DisplayDriverMock }

func (m *MockDriver) Init(ctx context.Context) error { return m.do(ctx, "init", nil) }

func (m *MockDriver) Display(ctx context.Context, img image.Image) error {
	return m.do(ctx, "display", img)
}

func (m *MockDriver) Clear(ctx context.Context) error { return m.do(ctx, "clear", nil) }

func (m *MockDriver) Sleep(ctx context.Context) error { return m.do(ctx, "sleep", nil) }

func (m *MockDriver) do(_ context.Context, kind string, img image.Image) error {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.maxActive.Load()
		if n <= peak || m.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	delay := m.delay
	err := m.failOn[kind]
	shouldPanic := m.panicOn[kind]
	m.mu.Unlock()

	start := time.Now()
	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldPanic {
		panic("mock driver: " + kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, Op{Kind: kind, Start: start, End: time.Now()})
	if err == nil && img != nil {
		m.last = img
	}
	return err
}
