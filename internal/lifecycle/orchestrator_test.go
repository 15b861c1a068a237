package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/registration"
)

// trace records the order components were started in.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, s)
}

func (t *trace) get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

func (t *trace) has(s string) bool {
	for _, step := range t.get() {
		if step == s {
			return true
		}
	}
	return false
}

type fakeProvisioner struct {
	tr        *trace
	connected bool
	err       error
}

func (f *fakeProvisioner) Ensure(context.Context) (bool, error) {
	f.tr.add("wifi")
	return f.connected, f.err
}

type fakeRegistrar struct {
	tr  *trace
	err error
}

func (f *fakeRegistrar) Run(context.Context) (registration.Result, error) {
	f.tr.add("registration")
	return registration.Result{State: registration.Claimed, DeviceID: "lumy-1"}, f.err
}

// blocker runs until ctx ends, or returns err at once when set.
type blocker struct {
	tr   *trace
	name string
	err  error
}

func (b *blocker) Name() string { return b.name }

func (b *blocker) Run(ctx context.Context) error {
	b.tr.add(b.name)
	if b.err != nil {
		return b.err
	}
	<-ctx.Done()
	return nil
}

type fakeScheduler struct{ blocker }

func (f *fakeScheduler) Run(ctx context.Context, _ <-chan *command.Request) error {
	return f.blocker.Run(ctx)
}

func components(tr *trace) Components {
	return Components{
		Provisioner: &fakeProvisioner{tr: tr, connected: true},
		Registrar:   &fakeRegistrar{tr: tr},
		Scheduler:   &fakeScheduler{blocker{tr: tr, name: "scheduler"}},
		Inbox:       command.NewBus(1).Inbox(),
		Sync:        &blocker{tr: tr, name: "sync"},
	}
}

// runUntil runs o in the background, waits for want to start, then cancels.
func runUntil(t *testing.T, o *Orchestrator, tr *trace, want ...string) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for _, w := range want {
		for !tr.has(w) {
			if time.Now().After(deadline) {
				t.Fatalf("%s never started; trace = %v", w, tr.get())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
		return nil
	}
}

// =============================================================================
// New
// =============================================================================

func TestNew_RequiresComponents(t *testing.T) {
	tr := &trace{}
	tests := []struct {
		name   string
		mutate func(*Components)
	}{
		{"provisioner", func(c *Components) { c.Provisioner = nil }},
		{"registrar", func(c *Components) { c.Registrar = nil }},
		{"scheduler", func(c *Components) { c.Scheduler = nil }},
		{"inbox", func(c *Components) { c.Inbox = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := components(tr)
			tt.mutate(&c)
			if _, err := New(c); !errors.Is(err, ErrMissingComponent) {
				t.Errorf("New() error = %v, want ErrMissingComponent", err)
			}
		})
	}

	c := components(tr)
	c.Sync = nil
	if _, err := New(c); err != nil {
		t.Errorf("New() without sync error = %v", err)
	}
}

// =============================================================================
// Run
// =============================================================================

func TestRun_BootOrder(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	c.Services = []Service{&blocker{tr: tr, name: "api"}}
	o, err := New(c)
	if err != nil {
		t.Fatal(err)
	}

	if err := runUntil(t, o, tr, "scheduler", "sync", "api"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	steps := tr.get()
	if len(steps) != 5 || steps[0] != "wifi" || steps[1] != "registration" {
		t.Errorf("trace = %v, want wifi then registration then the rest", steps)
	}
}

func TestRun_NotConnectedStopsEarly(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	c.Provisioner = &fakeProvisioner{tr: tr, connected: false}
	o, _ := New(c)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if steps := tr.get(); len(steps) != 1 {
		t.Errorf("trace = %v, want only wifi", steps)
	}
}

func TestRun_NetworkFailure(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	setupErr := errors.New("hostapd missing")
	c.Provisioner = &fakeProvisioner{tr: tr, err: setupErr}
	o, _ := New(c)

	if err := o.Run(context.Background()); !errors.Is(err, setupErr) {
		t.Errorf("Run() error = %v, want %v", err, setupErr)
	}
}

func TestRun_RegistrationFailure(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	codeErr := errors.New("entropy exhausted")
	c.Registrar = &fakeRegistrar{tr: tr, err: codeErr}
	o, _ := New(c)

	if err := o.Run(context.Background()); !errors.Is(err, codeErr) {
		t.Errorf("Run() error = %v, want %v", err, codeErr)
	}
	if tr.has("scheduler") {
		t.Error("scheduler started after a registration failure")
	}
}

func TestRun_CancelledDuringRegistration(t *testing.T) {
	tr := &trace{}
	o, _ := New(components(tr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.has("scheduler") {
		t.Error("scheduler started after cancellation")
	}
}

func TestRun_ServiceFailureIsNotFatal(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	c.Services = []Service{&blocker{tr: tr, name: "api", err: errors.New("address in use")}}
	o, _ := New(c)

	// The scheduler keeps running after the api gives up.
	if err := runUntil(t, o, tr, "api", "scheduler"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRun_SchedulerFailureIsFatal(t *testing.T) {
	tr := &trace{}
	c := components(tr)
	boom := errors.New("boom")
	c.Scheduler = &fakeScheduler{blocker{tr: tr, name: "scheduler", err: boom}}
	o, _ := New(c)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run() error = %v, want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on a scheduler failure")
	}
}
