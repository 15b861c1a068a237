package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/registration"
)

// Logger defines the logging interface for the lifecycle package.
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

// Provisioner brings the network up, or serves setup until reboot.
type Provisioner interface {
	Ensure(ctx context.Context) (bool, error)
}

// Pairing runs the registration flow.
type Pairing interface {
	Run(ctx context.Context) (registration.Result, error)
}

// Scheduler consumes the command bus and drives the display.
type Scheduler interface {
	Run(ctx context.Context, inbox <-chan *command.Request) error
}

// Syncer keeps the device in step with the backend.
type Syncer interface {
	Run(ctx context.Context) error
}

// Service is an optional long-running component. A failing service is
// logged; the device keeps running without it.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Components are the parts the orchestrator sequences. Sync and Services
// are optional.
type Components struct {
	Provisioner Provisioner
	Registrar   Pairing
	Scheduler   Scheduler
	Inbox       <-chan *command.Request
	Sync        Syncer
	Services    []Service
}

// Orchestrator runs the boot sequence and the steady state.
type Orchestrator struct {
	c      Components
	logger Logger
}

// New creates an orchestrator.
//
// Returns:
//   - error: ErrMissingComponent if a required part is nil
func New(c Components) (*Orchestrator, error) {
	switch {
	case c.Provisioner == nil:
		return nil, fmt.Errorf("%w: provisioner", ErrMissingComponent)
	case c.Registrar == nil:
		return nil, fmt.Errorf("%w: registrar", ErrMissingComponent)
	case c.Scheduler == nil:
		return nil, fmt.Errorf("%w: scheduler", ErrMissingComponent)
	case c.Inbox == nil:
		return nil, fmt.Errorf("%w: command inbox", ErrMissingComponent)
	}
	return &Orchestrator{c: c, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (o *Orchestrator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	o.logger = logger
}

// Run executes the boot sequence and blocks until ctx ends.
//
// Returns:
//   - error: A network setup failure, a pairing code failure, or a
//     scheduler failure. A cancelled ctx is a clean stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	connected, err := o.c.Provisioner.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("network setup: %w", err)
	}
	if !connected {
		o.logger.Info("network setup finished without a connection; stopping")
		return nil
	}

	res, err := o.c.Registrar.Run(ctx)
	if err != nil {
		return fmt.Errorf("registration: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	o.logger.Info("registration finished", "state", string(res.State), "device_id", res.DeviceID)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := o.c.Scheduler.Run(gctx, o.c.Inbox); err != nil {
			return fmt.Errorf("widget scheduler: %w", err)
		}
		return nil
	})

	if o.c.Sync != nil {
		g.Go(func() error {
			if err := o.c.Sync.Run(gctx); err != nil {
				o.logger.Error("cloud sync stopped", "error", err)
			}
			return nil
		})
	}

	for _, svc := range o.c.Services {
		svc := svc
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("service stopped", "service", svc.Name(), "error", err)
			}
			return nil
		})
	}

	o.logger.Info("device running", "services", len(o.c.Services))
	return g.Wait()
}
