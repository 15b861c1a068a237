package lifecycle

import (
	"context"

	"github.com/nerrad567/lumy-core/internal/command"
)

// CommandObserver records command outcomes.
type CommandObserver interface {
	ObserveCommand(name string, success bool)
}

// MeteredBus counts every command submitted through it. Requests that never
// got a reply count as failures.
type MeteredBus struct {
	bus      *command.Bus
	observer CommandObserver
}

// NewMeteredBus wraps bus. A nil observer counts nothing.
func NewMeteredBus(bus *command.Bus, observer CommandObserver) *MeteredBus {
	return &MeteredBus{bus: bus, observer: observer}
}

// Submit queues a command under a fresh id and waits for its reply.
func (m *MeteredBus) Submit(ctx context.Context, name string, payload any) (command.Reply, error) {
	rep, err := m.bus.Submit(ctx, name, payload)
	m.observe(name, rep, err)
	return rep, err
}

// SubmitWithID queues a command under id and waits for its reply.
func (m *MeteredBus) SubmitWithID(ctx context.Context, id, name string, payload any) (command.Reply, error) {
	rep, err := m.bus.SubmitWithID(ctx, id, name, payload)
	m.observe(name, rep, err)
	return rep, err
}

// Inbox returns the consumer side of the wrapped bus.
func (m *MeteredBus) Inbox() <-chan *command.Request {
	return m.bus.Inbox()
}

func (m *MeteredBus) observe(name string, rep command.Reply, err error) {
	if m.observer == nil {
		return
	}
	m.observer.ObserveCommand(name, err == nil && rep.Success)
}
